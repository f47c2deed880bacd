package domains

import (
	"context"
	"errors"
	"net"
	"time"
)

// TXTResolver looks up the TXT records published for a DNS name.
type TXTResolver interface {
	LookupTXT(ctx context.Context, name string) ([]string, error)
}

// NotFoundError reports that the name resolved but carried no TXT records
// (or did not exist at all), as opposed to the resolution infrastructure
// failing. Callers that only care about reachability can treat both the
// same; callers diagnosing user state can tell them apart.
type NotFoundError struct {
	Name string
	Err  error
}

func (e *NotFoundError) Error() string {
	return "no TXT records for " + e.Name
}

func (e *NotFoundError) Unwrap() error {
	return e.Err
}

// IsNotFound reports whether err is a TXT not-found, rather than an
// infrastructure failure.
func IsNotFound(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf)
}

type netTXTResolver struct {
	r *net.Resolver
}

func (n netTXTResolver) LookupTXT(ctx context.Context, name string) ([]string, error) {
	records, err := n.r.LookupTXT(ctx, name)
	if err != nil {
		var dnsErr *net.DNSError
		if errors.As(err, &dnsErr) && dnsErr.IsNotFound {
			return nil, &NotFoundError{Name: name, Err: err}
		}
		return nil, err
	}
	return records, nil
}

// NewResolver returns a TXTResolver backed by the system resolver.
func NewResolver() TXTResolver {
	return netTXTResolver{r: net.DefaultResolver}
}

type timeoutResolver struct {
	inner   TXTResolver
	timeout time.Duration
}

func (t timeoutResolver) LookupTXT(ctx context.Context, name string) ([]string, error) {
	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()
	return t.inner.LookupTXT(ctx, name)
}

// WithTimeout bounds every lookup through r. A non-positive timeout leaves
// r unwrapped.
func WithTimeout(r TXTResolver, d time.Duration) TXTResolver {
	if d <= 0 {
		return r
	}
	return timeoutResolver{inner: r, timeout: d}
}
