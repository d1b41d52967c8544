// Package routing tracks the driver's view of the cluster: which server
// addresses currently act as routers, readers and writers, and how that view
// is refreshed and shrunk as servers come and go.
package routing

// Address identifies one server endpoint in host:port form. Addresses are
// compared by value and used as keys for topology sets and pool lookups.
type Address string

func (a Address) String() string {
	return string(a)
}

// AccessMode tells whether an operation needs a read-capable or a
// write-capable server.
type AccessMode int

const (
	ReadAccess AccessMode = iota
	WriteAccess
)

func (m AccessMode) String() string {
	switch m {
	case ReadAccess:
		return "read"
	case WriteAccess:
		return "write"
	default:
		return "unknown"
	}
}
