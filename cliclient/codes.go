package cliclient

// Response status codes. Servers can send more; these are the ones callers
// commonly check for.
var (
	C200OK          = 200
	C201OKData      = 201 // OK, response carries data.
	C300ProvideData = 300 // OK, server expects more data, e.g. PASS after USER.

	C500DomainExists      = 500
	C510InsufficientRight = 510
	C512UnknownDomain     = 512
	C513UnknownAccount    = 513
	C520AccountExists     = 520
	C523GroupExists       = 523
	C524ForwarderExists   = 524
	C532MailboxExists     = 532
	C553UnknownForwarder  = 553
	C555AccountInUse      = 555
)
