package cliclient

import (
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/net/idna"
)

// domainASCII returns the IDNA ASCII form of a domain name, for putting
// internationalized domain names on the wire.
func domainASCII(domain string) (string, error) {
	domain = strings.TrimSuffix(domain, ".")
	ascii, err := idna.Lookup.ToASCII(strings.ToLower(domain))
	if err != nil {
		return "", fmt.Errorf("parsing domain %q: %w", domain, err)
	}
	return ascii, nil
}

// accountASCII normalizes the domain part of an account name of the form
// "name@domain". A bare account name is returned unchanged.
func accountASCII(account string) (string, error) {
	name, domain, ok := strings.Cut(account, "@")
	if !ok {
		return account, nil
	}
	d, err := domainASCII(domain)
	if err != nil {
		return "", err
	}
	return name + "@" + d, nil
}

// noteDomain records the domain a command operated on in the submission
// snapshot.
func (c *Client) noteDomain(domain string) {
	if c.submission != nil {
		c.submission.Domain = domain
	}
}

// transact sends a command line and returns the first value of type T from
// the response payload, at whatever depth the server put it.
func transact[T Value](c *Client, line string, acceptable ...int) (T, error) {
	var zero T
	resp, err := c.Command(line, acceptable...)
	if err != nil {
		return zero, err
	}
	t, ok := First[T](resp.Payload()...)
	if !ok {
		return zero, Error{resp.Code, c.cmd, resp.Raw, fmt.Errorf("%w: no %T in response", ErrExtract, zero)}
	}
	return t, nil
}

// ListDomains returns the names of all domains the server hosts.
func (c *Client) ListDomains() ([]string, error) {
	a, err := transact[Array](c, "LISTDOMAINS", C200OK, C201OKData)
	if err != nil {
		return nil, err
	}
	l := make([]string, len(a))
	for i, v := range a {
		l[i] = Text(v)
	}
	return l, nil
}

// ListAccounts returns the accounts of a domain, as account name to account
// type.
func (c *Client) ListAccounts(domain string) (map[string]string, error) {
	d, err := domainASCII(domain)
	if err != nil {
		return nil, err
	}
	defer c.noteDomain(d)
	dict, err := transact[Dict](c, "LISTACCOUNTS "+EncodeString(d), C200OK, C201OKData)
	if err != nil {
		return nil, err
	}
	accounts := map[string]string{}
	for _, e := range dict.Entries() {
		accounts[e.Key] = Text(e.Value)
	}
	return accounts, nil
}

// GetAccountEffectiveSettings returns the effective settings of an account:
// explicit settings combined with those inherited from domain and server
// defaults.
func (c *Client) GetAccountEffectiveSettings(account string) (Dict, error) {
	a, err := accountASCII(account)
	if err != nil {
		return Dict{}, err
	}
	return transact[Dict](c, "GETACCOUNTEFFECTIVESETTINGS "+EncodeString(a), C200OK, C201OKData)
}

// GetDomainEffectiveSettings returns the effective settings of a domain,
// explicit settings combined with server defaults.
func (c *Client) GetDomainEffectiveSettings(domain string) (Dict, error) {
	d, err := domainASCII(domain)
	if err != nil {
		return Dict{}, err
	}
	defer c.noteDomain(d)
	return transact[Dict](c, "GETDOMAINEFFECTIVESETTINGS "+EncodeString(d), C200OK, C201OKData)
}

// GetDomainSettings returns the explicitly configured settings of a domain.
// The second return value is false, without error, when the server does not
// know the domain.
func (c *Client) GetDomainSettings(domain string) (Dict, bool, error) {
	d, err := domainASCII(domain)
	if err != nil {
		return Dict{}, false, err
	}
	defer c.noteDomain(d)
	resp, err := c.Command("GETDOMAINSETTINGS "+EncodeString(d), C200OK, C201OKData, C512UnknownDomain)
	if err != nil {
		return Dict{}, false, err
	}
	if resp.Code == C512UnknownDomain {
		return Dict{}, false, nil
	}
	dict, ok := First[Dict](resp.Payload()...)
	if !ok {
		return Dict{}, false, Error{resp.Code, c.cmd, resp.Raw, fmt.Errorf("%w: no dictionary in response", ErrExtract)}
	}
	return dict, true, nil
}

// UpdateDomainSettings sets the given settings on a domain, leaving settings
// not mentioned unchanged.
func (c *Client) UpdateDomainSettings(domain string, settings Dict) error {
	d, err := domainASCII(domain)
	if err != nil {
		return err
	}
	defer c.noteDomain(d)
	_, err = c.Command(fmt.Sprintf("UPDATEDOMAINSETTINGS %s %s", EncodeString(d), EncodeValue(settings)), C200OK)
	return err
}

// RenameDomain renames a domain, moving all its accounts.
func (c *Client) RenameDomain(oldName, newName string) error {
	o, err := domainASCII(oldName)
	if err != nil {
		return err
	}
	n, err := domainASCII(newName)
	if err != nil {
		return err
	}
	defer c.noteDomain(o)
	_, err = c.Command(fmt.Sprintf("RENAMEDOMAIN %s INTO %s", EncodeString(o), EncodeString(n)), C200OK)
	return err
}

// CreateDomain creates a domain.
func (c *Client) CreateDomain(domain string) error {
	d, err := domainASCII(domain)
	if err != nil {
		return err
	}
	defer c.noteDomain(d)
	_, err = c.Command("CREATEDOMAIN "+EncodeString(d), C200OK)
	return err
}

// DeleteDomain removes a domain and all its objects.
func (c *Client) DeleteDomain(domain string) error {
	d, err := domainASCII(domain)
	if err != nil {
		return err
	}
	defer c.noteDomain(d)
	_, err = c.Command("DELETEDOMAIN "+EncodeString(d), C200OK)
	return err
}

// CreateAccount creates an account. An empty accountType leaves the choice
// of mailbox format to the server.
func (c *Client) CreateAccount(account, accountType string) error {
	a, err := accountASCII(account)
	if err != nil {
		return err
	}
	line := "CREATEACCOUNT " + EncodeString(a)
	if accountType != "" {
		line += " " + EncodeString(accountType)
	}
	_, err = c.Command(line, C200OK)
	return err
}

// DeleteAccount removes an account and its mail.
func (c *Client) DeleteAccount(account string) error {
	a, err := accountASCII(account)
	if err != nil {
		return err
	}
	_, err = c.Command("DELETEACCOUNT "+EncodeString(a), C200OK)
	return err
}

// GetAccountMailRules returns the mail processing rules of an account. Each
// rule is itself a value, typically an array of priority, name, conditions
// and actions.
func (c *Client) GetAccountMailRules(account string) ([]Value, error) {
	a, err := accountASCII(account)
	if err != nil {
		return nil, err
	}
	arr, err := transact[Array](c, "GETACCOUNTMAILRULES "+EncodeString(a), C200OK, C201OKData)
	if err != nil {
		return nil, err
	}
	return []Value(arr), nil
}

// GetAccountStorageUsed returns the bytes of storage an account occupies.
func (c *Client) GetAccountStorageUsed(account string) (int64, error) {
	a, err := accountASCII(account)
	if err != nil {
		return 0, err
	}
	resp, err := c.Command(fmt.Sprintf("GETACCOUNTINFO %s KEY StorageUsed", EncodeString(a)), C200OK, C201OKData)
	if err != nil {
		return 0, err
	}
	if n, ok := First[Int](resp.Payload()...); ok {
		return int64(n), nil
	}
	// Older servers render the value as a plain atom.
	if s, ok := First[String](resp.Payload()...); ok {
		if n, err := strconv.ParseInt(string(s), 10, 64); err == nil {
			return n, nil
		}
	}
	return 0, Error{resp.Code, c.cmd, resp.Raw, fmt.Errorf("%w: no integer in response", ErrExtract)}
}
