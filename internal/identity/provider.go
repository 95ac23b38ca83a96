package identity

// Provider supplies the acting user and tenant for the current session.
// The host application implements this against its auth/session layer.
type Provider interface {
	UserID() string
	TenantID() string
}

// StaticProvider is a fixed identity, used by the daemon and in tests.
type StaticProvider struct {
	User   string
	Tenant string
}

func (p StaticProvider) UserID() string   { return p.User }
func (p StaticProvider) TenantID() string { return p.Tenant }
