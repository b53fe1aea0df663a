package federation

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/go-ldap/ldap/v3"

	"github.com/meridian-pim/meridian/internal/shared"
)

// Directory abstracts the external user directory so the service and its
// tests do not depend on a live LDAP server.
type Directory interface {
	// Bind verifies the user's credentials against the directory.
	Bind(ctx context.Context, cfg LDAPConfig, email, password string) error
	// Search returns every entry matching the configured user filter.
	Search(ctx context.Context, cfg LDAPConfig) ([]DirectoryEntry, error)
	// Ping checks reachability and service-account credentials.
	Ping(ctx context.Context, cfg LDAPConfig) error
}

// LDAPDirectory talks to a real LDAP server.
type LDAPDirectory struct {
	DialTimeout time.Duration
}

// NewLDAPDirectory constructs a directory client.
func NewLDAPDirectory(dialTimeout time.Duration) *LDAPDirectory {
	if dialTimeout <= 0 {
		dialTimeout = 10 * time.Second
	}
	return &LDAPDirectory{DialTimeout: dialTimeout}
}

func (d *LDAPDirectory) connect(ctx context.Context, cfg LDAPConfig) (*ldap.Conn, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	scheme := "ldap"
	if cfg.UseTLS {
		scheme = "ldaps"
	}
	url := fmt.Sprintf("%s://%s:%d", scheme, cfg.Host, cfg.Port)
	conn, err := ldap.DialURL(url, ldap.DialWithDialer(&net.Dialer{Timeout: d.DialTimeout}))
	if err != nil {
		return nil, fmt.Errorf("dial directory: %w", err)
	}
	conn.SetTimeout(d.DialTimeout)
	if deadline, ok := ctx.Deadline(); ok {
		if remaining := time.Until(deadline); remaining > 0 && remaining < d.DialTimeout {
			conn.SetTimeout(remaining)
		}
	}
	return conn, nil
}

func (d *LDAPDirectory) serviceBind(conn *ldap.Conn, cfg LDAPConfig) error {
	if err := conn.Bind(cfg.BindDN, cfg.BindPassword); err != nil {
		return fmt.Errorf("service bind: %w", err)
	}
	return nil
}

// Bind looks the user up by email through the service account, then binds
// with the user's own DN and password.
func (d *LDAPDirectory) Bind(ctx context.Context, cfg LDAPConfig, email, password string) error {
	conn, err := d.connect(ctx, cfg)
	if err != nil {
		return err
	}
	defer conn.Close()
	if err := d.serviceBind(conn, cfg); err != nil {
		return err
	}
	req := ldap.NewSearchRequest(
		cfg.BaseDN, ldap.ScopeWholeSubtree, ldap.NeverDerefAliases, 2, 0, false,
		fmt.Sprintf("(%s=%s)", cfg.EmailAttr, ldap.EscapeFilter(email)),
		[]string{"dn"}, nil,
	)
	res, err := conn.Search(req)
	if err != nil {
		return fmt.Errorf("search user: %w", err)
	}
	if len(res.Entries) != 1 {
		return shared.E(shared.KindInvalidCredentials, "invalid email or password")
	}
	if err := conn.Bind(res.Entries[0].DN, password); err != nil {
		return shared.E(shared.KindInvalidCredentials, "invalid email or password")
	}
	return nil
}

// Search lists directory entries for sync.
func (d *LDAPDirectory) Search(ctx context.Context, cfg LDAPConfig) ([]DirectoryEntry, error) {
	conn, err := d.connect(ctx, cfg)
	if err != nil {
		return nil, err
	}
	defer conn.Close()
	if err := d.serviceBind(conn, cfg); err != nil {
		return nil, err
	}
	req := ldap.NewSearchRequest(
		cfg.BaseDN, ldap.ScopeWholeSubtree, ldap.NeverDerefAliases, 0, 0, false,
		cfg.UserFilter,
		[]string{cfg.EmailAttr, cfg.NameAttr, cfg.DeptAttr}, nil,
	)
	res, err := conn.SearchWithPaging(req, 500)
	if err != nil {
		return nil, fmt.Errorf("search directory: %w", err)
	}
	entries := make([]DirectoryEntry, 0, len(res.Entries))
	for _, e := range res.Entries {
		entries = append(entries, DirectoryEntry{
			Email:      e.GetAttributeValue(cfg.EmailAttr),
			Name:       e.GetAttributeValue(cfg.NameAttr),
			Department: e.GetAttributeValue(cfg.DeptAttr),
		})
	}
	return entries, nil
}

// Ping dials and performs the service bind, nothing else.
func (d *LDAPDirectory) Ping(ctx context.Context, cfg LDAPConfig) error {
	conn, err := d.connect(ctx, cfg)
	if err != nil {
		return err
	}
	defer conn.Close()
	return d.serviceBind(conn, cfg)
}

var _ Directory = (*LDAPDirectory)(nil)
