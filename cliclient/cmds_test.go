package cliclient

import (
	"testing"
)

func TestCommands(t *testing.T) {
	c, err, errc := startSession(t, Opts{Username: "admin", Password: "secret"}, testGreeting, authScript(
		exchange{`LISTACCOUNTS "example.com"`, `201 {jan=CommuniGate;piet=TextMailbox;}`},
		exchange{`GETACCOUNTEFFECTIVESETTINGS "jan@example.com"`, `200 {RealName="Jan Smit";MaxMailboxSize=#100000;}`},
		exchange{`GETDOMAINSETTINGS "example.com"`, `200 {CanCreateAliases=YES;}`},
		exchange{`GETDOMAINSETTINGS "bad.example"`, `512 unknown domain`},
		exchange{`GETDOMAINEFFECTIVESETTINGS "example.com"`, `200 {CanCreateAliases=YES;DomainAccessModes=(Mail,Signal);}`},
		exchange{`UPDATEDOMAINSETTINGS "example.com" {CanCreateAliases=NO;}`, "200 ok"},
		exchange{`RENAMEDOMAIN "example.com" INTO "example.net"`, "200 ok"},
		exchange{`CREATEDOMAIN "xn--bcher-kva.example"`, "200 ok"},
		exchange{`DELETEDOMAIN "xn--bcher-kva.example"`, "200 ok"},
		exchange{`CREATEACCOUNT "jan@example.net" TextMailbox`, "200 ok"},
		exchange{"DELETEACCOUNT jan", "200 ok"},
		exchange{`GETACCOUNTMAILRULES "jan@example.net"`, "200 ((1,Highlight,(),()),(2,Junk,(),()))"},
		exchange{`GETACCOUNTINFO "jan@example.net" KEY StorageUsed`, "201 #1234567"},
		exchange{`GETACCOUNTINFO "piet@example.net" KEY StorageUsed`, "201 7654321"},
	))
	tcheckf(t, err, "establishing session")

	accounts, err := c.ListAccounts("example.com")
	tcheckf(t, err, "listaccounts")
	tcompare(t, accounts, map[string]string{"jan": "CommuniGate", "piet": "TextMailbox"})

	settings, err := c.GetAccountEffectiveSettings("jan@example.com")
	tcheckf(t, err, "getaccounteffectivesettings")
	tcompare(t, settings, dict("RealName", String("Jan Smit"), "MaxMailboxSize", Int(100000)))

	settings, ok, err := c.GetDomainSettings("example.com")
	tcheckf(t, err, "getdomainsettings")
	tcompare(t, ok, true)
	tcompare(t, settings, dict("CanCreateAliases", String("YES")))

	// An unknown domain is not an error, just absent.
	_, ok, err = c.GetDomainSettings("bad.example")
	tcheckf(t, err, "getdomainsettings for unknown domain")
	tcompare(t, ok, false)

	settings, err = c.GetDomainEffectiveSettings("example.com")
	tcheckf(t, err, "getdomaineffectivesettings")
	v, _ := settings.Get("DomainAccessModes")
	tcompare(t, v, Array{String("Mail"), String("Signal")})

	err = c.UpdateDomainSettings("example.com", dict("CanCreateAliases", "NO"))
	tcheckf(t, err, "updatedomainsettings")

	err = c.RenameDomain("example.com", "example.net")
	tcheckf(t, err, "renamedomain")

	// Internationalized domain names go on the wire in IDNA ASCII form.
	err = c.CreateDomain("Bücher.example")
	tcheckf(t, err, "createdomain")
	sub, _ := c.LastSubmission()
	tcompare(t, sub.Domain, "xn--bcher-kva.example")

	err = c.DeleteDomain("bücher.example")
	tcheckf(t, err, "deletedomain")

	err = c.CreateAccount("jan@example.net", "TextMailbox")
	tcheckf(t, err, "createaccount")
	err = c.DeleteAccount("jan")
	tcheckf(t, err, "deleteaccount")

	rules, err := c.GetAccountMailRules("jan@example.net")
	tcheckf(t, err, "getaccountmailrules")
	tcompare(t, len(rules), 2)
	tcompare(t, rules[0], Value(Array{String("1"), String("Highlight"), Array{}, Array{}}))

	used, err := c.GetAccountStorageUsed("jan@example.net")
	tcheckf(t, err, "getaccountstorageused")
	tcompare(t, used, int64(1234567))

	// Older servers render the size as a plain atom.
	used, err = c.GetAccountStorageUsed("piet@example.net")
	tcheckf(t, err, "getaccountstorageused")
	tcompare(t, used, int64(7654321))

	err = c.Close()
	tcheckf(t, err, "closing")
	tcheckf(t, <-errc, "server")
}
