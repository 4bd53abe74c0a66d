// Command cgpadm administers a CommuniGate Pro mail server through its
// CLI/PWD interface.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"slices"
	"strings"
	"time"

	"github.com/mjl-/sconf"

	"github.com/webnames-ca/cgpro/cgplog"
	"github.com/webnames-ca/cgpro/cliclient"
)

// Config is the parsed form of the cgpadm.conf configuration file.
type Config struct {
	Address  string `sconf-doc:"NOTE: This config file is in 'sconf' format. Indent with tabs. Comments must be on their own line, they don't end a line. Do not escape or quote strings. Details: https://pkg.go.dev/github.com/mjl-/sconf.\n\n\nAddress of the CLI/PWD interface of the server, as host:port. The PWD port is 106 by default."`
	Username string `sconf-doc:"Account to authenticate as, e.g. postmaster."`
	Password string `sconf-doc:"Password for the account."`
	APOP     bool   `sconf:"optional" sconf-doc:"Authenticate with APOP instead of USER/PASS, keeping the password off the wire. The server must have APOP enabled for the account."`
	Timeout  int    `sconf:"optional" sconf-doc:"Timeout in milliseconds for each read and write on the connection. Default 100000."`
	LogLevel string `sconf:"optional" sconf-doc:"Log level, one of: error, info, debug, trace, traceauth. Trace logs protocol transcripts, traceauth also the lines carrying passwords. Default info."`
}

var (
	configPath string
	loglevel   string // Overrides the config file when non-empty.
	config     Config
)

var commands = []struct {
	cmd string
	fn  func(c *cmd)
}{
	{"config describe", cmdConfigDescribe},
	{"domain list", cmdDomainList},
	{"domain settings", cmdDomainSettings},
	{"domain effectivesettings", cmdDomainEffectiveSettings},
	{"domain update", cmdDomainUpdate},
	{"domain add", cmdDomainAdd},
	{"domain rm", cmdDomainRemove},
	{"domain rename", cmdDomainRename},
	{"account list", cmdAccountList},
	{"account effectivesettings", cmdAccountEffectiveSettings},
	{"account rules", cmdAccountRules},
	{"account storage", cmdAccountStorage},
	{"account add", cmdAccountAdd},
	{"account rm", cmdAccountRemove},
	{"cmd", cmdRaw},
}

var cmds []cmd

func init() {
	for _, xc := range commands {
		cmds = append(cmds, cmd{words: strings.Split(xc.cmd, " "), fn: xc.fn})
	}
}

type cmd struct {
	words []string
	fn    func(c *cmd)

	// Set before calling command.
	flag     *flag.FlagSet
	flagArgs []string
	_gather  bool // Set when using Parse to gather usage for a command.

	// Set by invoked command or Parse.
	params string // Arguments to command.
	help   string // Additional explanation. First line is synopsis.
	args   []string
}

func (c *cmd) Parse() []string {
	// To gather params and usage information, we just run the command but cause
	// this panic after the command has registered its flags and set its params and
	// help information. This is then caught and that info printed.
	if c._gather {
		panic("gather")
	}

	c.flag.Usage = c.Usage
	c.flag.Parse(c.flagArgs)
	c.args = c.flag.Args()
	return c.args
}

func (c *cmd) gather() {
	c.flag = flag.NewFlagSet("cgpadm "+strings.Join(c.words, " "), flag.ExitOnError)
	c._gather = true
	defer func() {
		x := recover()
		// panic generated by Parse.
		if x != "gather" {
			panic(x)
		}
	}()
	c.fn(c)
}

func (c *cmd) makeUsage() string {
	var r strings.Builder
	cs := "cgpadm " + strings.Join(c.words, " ")
	for i, line := range strings.Split(strings.TrimSpace(c.params), "\n") {
		s := ""
		if i == 0 {
			s = "usage:"
		}
		if line != "" {
			line = " " + line
		}
		fmt.Fprintf(&r, "%6s %s%s\n", s, cs, line)
	}
	c.flag.SetOutput(&r)
	c.flag.PrintDefaults()
	return r.String()
}

func (c *cmd) Usage() {
	fmt.Fprint(os.Stderr, c.makeUsage())
	if c.help != "" {
		fmt.Fprint(os.Stderr, "\n"+c.help+"\n")
	}
	os.Exit(2)
}

func usage(l []cmd) {
	var lines []string
	lines = append(lines, "cgpadm [-config cgpadm.conf] [-loglevel level] ...")
	for _, c := range l {
		c.gather()
		for _, line := range strings.Split(c.params, "\n") {
			x := append([]string{"cgpadm"}, c.words...)
			if line != "" {
				x = append(x, line)
			}
			lines = append(lines, strings.Join(x, " "))
		}
	}
	for i, line := range lines {
		pre := "       "
		if i == 0 {
			pre = "usage: "
		}
		fmt.Fprintln(os.Stderr, pre+line)
	}
	os.Exit(2)
}

func main() {
	log.SetFlags(0)

	flag.StringVar(&configPath, "config", envString("CGPADMCONF", "cgpadm.conf"), "configuration file, defaults to $CGPADMCONF with a fallback to cgpadm.conf")
	flag.StringVar(&loglevel, "loglevel", "", "if non-empty, overrides the log level from the config file")
	flag.Usage = func() { usage(cmds) }
	flag.Parse()
	args := flag.Args()
	if len(args) == 0 {
		usage(cmds)
	}

	var partial []cmd
next:
	for _, c := range cmds {
		for i, w := range c.words {
			if i >= len(args) || w != args[i] {
				if i > 0 {
					partial = append(partial, c)
				}
				continue next
			}
		}
		c.flag = flag.NewFlagSet("cgpadm "+strings.Join(c.words, " "), flag.ExitOnError)
		c.flagArgs = args[len(c.words):]
		c.fn(&c)
		return
	}
	if len(partial) > 0 {
		usage(partial)
	}
	usage(cmds)
}

func envString(k, def string) string {
	s := os.Getenv(k)
	if s == "" {
		return def
	}
	return s
}

func xcheckf(err error, format string, args ...any) {
	if err == nil {
		return
	}
	msg := fmt.Sprintf(format, args...)
	log.Fatalf("%s: %s", msg, err)
}

var loglevels = map[string]slog.Level{
	"error":     slog.LevelError,
	"info":      slog.LevelInfo,
	"debug":     slog.LevelDebug,
	"trace":     cgplog.LevelTrace,
	"traceauth": cgplog.LevelTraceauth,
}

// xconnect loads the configuration file and establishes an authenticated
// session. Callers must close the returned client.
func xconnect() *cliclient.Client {
	err := sconf.ParseFile(configPath, &config)
	xcheckf(err, "parsing config file %s", configPath)

	ll := loglevel
	if ll == "" {
		ll = config.LogLevel
	}
	if ll == "" {
		ll = "info"
	}
	level, ok := loglevels[ll]
	if !ok {
		log.Fatalf("unknown loglevel %q", ll)
	}
	elog := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	auth := cliclient.AuthPassword
	if config.APOP {
		auth = cliclient.AuthAPOP
	}
	client, err := cliclient.Dial(context.Background(), elog, config.Address, cliclient.Opts{
		Username: config.Username,
		Password: config.Password,
		Auth:     auth,
		Timeout:  time.Duration(config.Timeout) * time.Millisecond,
	})
	xcheckf(err, "connecting to %s", config.Address)
	return client
}

func xclose(client *cliclient.Client) {
	err := client.Close()
	xcheckf(err, "closing connection")
}

func printDict(d cliclient.Dict) {
	for _, e := range d.Entries() {
		fmt.Printf("%s: %s\n", e.Key, cliclient.Text(e.Value))
	}
}

func cmdConfigDescribe(c *cmd) {
	c.params = ">cgpadm.conf"
	c.help = `Prints an annotated empty configuration for use as cgpadm.conf.

This configuration file needs modifications to make it valid, at least the
server address and credentials.
`
	if len(c.Parse()) != 0 {
		c.Usage()
	}

	err := sconf.Describe(os.Stdout, &Config{Address: "mail.example.com:106", Username: "postmaster"})
	xcheckf(err, "describing config")
}

func cmdDomainList(c *cmd) {
	c.help = `List the domains the server hosts.`
	if len(c.Parse()) != 0 {
		c.Usage()
	}

	client := xconnect()
	defer xclose(client)
	domains, err := client.ListDomains()
	xcheckf(err, "listing domains")
	for _, d := range domains {
		fmt.Println(d)
	}
}

func cmdDomainSettings(c *cmd) {
	c.params = "domain"
	c.help = `Print the explicitly configured settings of a domain.

Settings inherited from server defaults are not included, see
"domain effectivesettings" for those.
`
	args := c.Parse()
	if len(args) != 1 {
		c.Usage()
	}

	client := xconnect()
	defer xclose(client)
	settings, ok, err := client.GetDomainSettings(args[0])
	xcheckf(err, "getting domain settings")
	if !ok {
		log.Fatalf("no such domain %q", args[0])
	}
	printDict(settings)
}

func cmdDomainEffectiveSettings(c *cmd) {
	c.params = "domain"
	c.help = `Print the effective settings of a domain, including server defaults.`
	args := c.Parse()
	if len(args) != 1 {
		c.Usage()
	}

	client := xconnect()
	defer xclose(client)
	settings, err := client.GetDomainEffectiveSettings(args[0])
	xcheckf(err, "getting domain effective settings")
	printDict(settings)
}

func cmdDomainUpdate(c *cmd) {
	c.params = "domain setting=value ..."
	c.help = `Update settings of a domain, leaving settings not mentioned unchanged.

Values are plain strings. Structured values can be set with "cgpadm cmd".
`
	args := c.Parse()
	if len(args) < 2 {
		c.Usage()
	}

	var settings cliclient.Dict
	for _, kv := range args[1:] {
		k, v, ok := strings.Cut(kv, "=")
		if !ok {
			log.Fatalf("malformed setting %q, need setting=value", kv)
		}
		settings.Set(k, v)
	}

	client := xconnect()
	defer xclose(client)
	err := client.UpdateDomainSettings(args[0], settings)
	xcheckf(err, "updating domain settings")
}

func cmdDomainAdd(c *cmd) {
	c.params = "domain"
	c.help = `Create a domain.`
	args := c.Parse()
	if len(args) != 1 {
		c.Usage()
	}

	client := xconnect()
	defer xclose(client)
	err := client.CreateDomain(args[0])
	xcheckf(err, "creating domain")
}

func cmdDomainRemove(c *cmd) {
	c.params = "domain"
	c.help = `Remove a domain and all its objects, including accounts and their mail.`
	args := c.Parse()
	if len(args) != 1 {
		c.Usage()
	}

	client := xconnect()
	defer xclose(client)
	err := client.DeleteDomain(args[0])
	xcheckf(err, "removing domain")
}

func cmdDomainRename(c *cmd) {
	c.params = "olddomain newdomain"
	c.help = `Rename a domain, moving all its accounts.`
	args := c.Parse()
	if len(args) != 2 {
		c.Usage()
	}

	client := xconnect()
	defer xclose(client)
	err := client.RenameDomain(args[0], args[1])
	xcheckf(err, "renaming domain")
}

func cmdAccountList(c *cmd) {
	c.params = "domain"
	c.help = `List the accounts of a domain, with their account types.`
	args := c.Parse()
	if len(args) != 1 {
		c.Usage()
	}

	client := xconnect()
	defer xclose(client)
	accounts, err := client.ListAccounts(args[0])
	xcheckf(err, "listing accounts")
	names := make([]string, 0, len(accounts))
	for name := range accounts {
		names = append(names, name)
	}
	slices.Sort(names)
	for _, name := range names {
		fmt.Printf("%s\t%s\n", name, accounts[name])
	}
}

func cmdAccountEffectiveSettings(c *cmd) {
	c.params = "account"
	c.help = `Print the effective settings of an account, as name@domain.

Explicit account settings are combined with those inherited from domain and
server defaults.
`
	args := c.Parse()
	if len(args) != 1 {
		c.Usage()
	}

	client := xconnect()
	defer xclose(client)
	settings, err := client.GetAccountEffectiveSettings(args[0])
	xcheckf(err, "getting account effective settings")
	printDict(settings)
}

func cmdAccountRules(c *cmd) {
	c.params = "account"
	c.help = `Print the mail processing rules of an account.`
	args := c.Parse()
	if len(args) != 1 {
		c.Usage()
	}

	client := xconnect()
	defer xclose(client)
	rules, err := client.GetAccountMailRules(args[0])
	xcheckf(err, "getting account mail rules")
	for _, rule := range rules {
		fmt.Println(cliclient.EncodeValue(rule))
	}
}

func cmdAccountStorage(c *cmd) {
	c.params = "account"
	c.help = `Print the bytes of storage an account occupies.`
	args := c.Parse()
	if len(args) != 1 {
		c.Usage()
	}

	client := xconnect()
	defer xclose(client)
	used, err := client.GetAccountStorageUsed(args[0])
	xcheckf(err, "getting account storage")
	fmt.Println(used)
}

func cmdAccountAdd(c *cmd) {
	c.params = "account [accounttype]"
	c.help = `Create an account, as name@domain.

The account type selects the mailbox format, e.g. MultiMailbox or TextMailbox.
Without one, the server picks its default.
`
	args := c.Parse()
	if len(args) != 1 && len(args) != 2 {
		c.Usage()
	}
	accountType := ""
	if len(args) == 2 {
		accountType = args[1]
	}

	client := xconnect()
	defer xclose(client)
	err := client.CreateAccount(args[0], accountType)
	xcheckf(err, "creating account")
}

func cmdAccountRemove(c *cmd) {
	c.params = "account"
	c.help = `Remove an account and its mail.`
	args := c.Parse()
	if len(args) != 1 {
		c.Usage()
	}

	client := xconnect()
	defer xclose(client)
	err := client.DeleteAccount(args[0])
	xcheckf(err, "removing account")
}

func cmdRaw(c *cmd) {
	c.params = "line ..."
	c.help = `Send a raw CLI command line and print the parsed response.

The arguments are joined with spaces and sent as-is, so arguments that need
quoting must be quoted as the protocol expects, e.g.:

	cgpadm cmd GETDOMAINSETTINGS '"example.com"'
`
	args := c.Parse()
	if len(args) == 0 {
		c.Usage()
	}

	client := xconnect()
	defer xclose(client)
	resp, err := client.Command(strings.Join(args, " "))
	xcheckf(err, "executing command")
	fmt.Printf("%d\n", resp.Code)
	for _, v := range resp.Payload() {
		fmt.Println(cliclient.EncodeValue(v))
	}
}
