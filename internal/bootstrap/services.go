package bootstrap

import (
	"github.com/pedalworks/trainsync/internal/config"
	"github.com/pedalworks/trainsync/internal/integration"
	"github.com/pedalworks/trainsync/internal/maintenance"
	"github.com/pedalworks/trainsync/internal/provider"
	"github.com/pedalworks/trainsync/internal/ratelimit"
	"github.com/pedalworks/trainsync/internal/webhook"
)

// Services holds the application's service layer
type Services struct {
	Integration integration.Service
	Webhook     webhook.Service
	Maintenance maintenance.Service
	Limiter     *ratelimit.Limiter
}

// credentialSource adapts config to the service layer's credential lookup
type credentialSource struct {
	cfg *config.Config
}

func (s *credentialSource) CredentialsFor(providerName string) (provider.Credentials, bool) {
	pc := s.cfg.ProviderFor(providerName)
	if !pc.Configured() {
		return provider.Credentials{}, false
	}
	return provider.Credentials{
		ClientID:     pc.ClientID,
		ClientSecret: pc.ClientSecret,
		RedirectURI:  pc.RedirectURI,
	}, true
}

// NewServices wires the service layer on top of the repositories
func NewServices(cfg *config.Config, repos *Repositories) (*Services, error) {
	limiter, err := ratelimit.NewLimiter()
	if err != nil {
		return nil, err
	}

	client := provider.NewClient()
	creds := &credentialSource{cfg: cfg}

	integrationSvc := integration.NewService(repos.Integration, repos.Pending, client, creds)

	return &Services{
		Integration: integrationSvc,
		Webhook:     webhook.NewService(repos.Webhook, repos.Integration),
		Maintenance: maintenance.NewService(repos.Integration, integrationSvc),
		Limiter:     limiter,
	}, nil
}
