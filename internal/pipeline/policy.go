package pipeline

import (
	"fmt"
	"regexp"
	"strings"
)

// Decision is a policy's answer for one resolution.
type Decision struct {
	Allowed bool
	Reason  string
}

// Allow permits the resolution.
func Allow() Decision {
	return Decision{Allowed: true}
}

// Deny refuses the resolution for reason.
func Deny(reason string) Decision {
	return Decision{Reason: reason}
}

// Policy authorizes resolutions.
type Policy interface {
	Authorize(ctx *Context) Decision
}

// PolicyFunc adapts a function to Policy.
type PolicyFunc func(ctx *Context) Decision

func (f PolicyFunc) Authorize(ctx *Context) Decision {
	return f(ctx)
}

// AllowAll permits every resolution.
type AllowAll struct{}

func (AllowAll) Authorize(*Context) Decision {
	return Allow()
}

// DenyPatterns refuses services whose id matches one of its patterns. A "*"
// in a pattern matches any run of characters, including "/" and ".".
type DenyPatterns struct {
	patterns []string
	compiled []*regexp.Regexp
}

// NewDenyPatterns compiles patterns into a policy.
func NewDenyPatterns(patterns ...string) *DenyPatterns {
	p := &DenyPatterns{patterns: patterns}
	for _, pattern := range patterns {
		parts := strings.Split(pattern, "*")
		for i := range parts {
			parts[i] = regexp.QuoteMeta(parts[i])
		}
		p.compiled = append(p.compiled, regexp.MustCompile("^"+strings.Join(parts, ".*")+"$"))
	}
	return p
}

func (p *DenyPatterns) Authorize(ctx *Context) Decision {
	for i, re := range p.compiled {
		if re.MatchString(ctx.ServiceID) {
			return Deny(fmt.Sprintf("service id matches denied pattern %q", p.patterns[i]))
		}
	}
	return Allow()
}

// Policies permits a resolution only when every member does.
type Policies []Policy

func (ps Policies) Authorize(ctx *Context) Decision {
	for _, p := range ps {
		if d := p.Authorize(ctx); !d.Allowed {
			return d
		}
	}
	return Allow()
}
