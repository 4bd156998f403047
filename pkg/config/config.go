// Package config loads the process configuration once at startup. Nothing
// else in the module reads the environment.
package config

import (
	"fmt"
	"os"
	"slices"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"

	"dispatch_portal/pkg/apperr"
)

type Config struct {
	Server    Server
	Dataverse Dataverse
	Flow      Flow
	Storage   Storage
}

type Server struct {
	Port     string `env:"FUNCTIONS_CUSTOMHANDLER_PORT" envDefault:"8080"`
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`
}

// Dataverse holds the service principal and the environment URL.
type Dataverse struct {
	TenantID     string        `env:"TENANT_ID"`
	ClientID     string        `env:"CLIENT_ID"`
	ClientSecret string        `env:"CLIENT_SECRET"`
	URL          string        `env:"DATAVERSE_URL"`
	APIVersion   string        `env:"DATAVERSE_API_VERSION" envDefault:"v9.2"`
	Timeout      time.Duration `env:"DATAVERSE_TIMEOUT" envDefault:"30s"`
	Schema       Schema
}

// Schema names the tables and columns the lookups use. The defaults are the
// logical names of the production environment.
type Schema struct {
	WorkerEntitySet   string `env:"DATAVERSE_WORKER_TABLE" envDefault:"new_sagyouin_mastas"`
	WorkerIDField     string `env:"DATAVERSE_WORKER_ID_FIELD" envDefault:"new_sagyouin_mastaid"`
	WorkerMailField   string `env:"DATAVERSE_WORKER_MAIL_FIELD" envDefault:"new_mail"`
	WorkerNameField   string `env:"DATAVERSE_WORKER_NAME_FIELD" envDefault:"new_sagyouin_id"`
	BusinessUnitField string `env:"DATAVERSE_BUSINESS_UNIT_FIELD" envDefault:"_owningbusinessunit_value"`

	DispatchEntitySet       string   `env:"DATAVERSE_DISPATCH_TABLE" envDefault:"new_table2s"`
	DispatchIDField         string   `env:"DATAVERSE_DISPATCH_ID_FIELD" envDefault:"new_table2id"`
	DispatchFields          []string `env:"DATAVERSE_DISPATCH_FIELDS" envDefault:"new_day,new_genbamei,new_sagyou_naiyou,new_start_time"`
	DispatchAttachmentField string   `env:"DATAVERSE_DISPATCH_ATTACHMENT_FIELD"`
	DispatchOrderBy         string   `env:"DATAVERSE_DISPATCH_ORDER_BY" envDefault:"new_day desc"`
}

// Flow is the workflow endpoint notified when a job is completed.
type Flow struct {
	CompleteURL     string        `env:"FLOW_URL_COMPLETE"`
	CompletedStatus int           `env:"FLOW_COMPLETED_STATUS" envDefault:"100000004"`
	Timeout         time.Duration `env:"FLOW_TIMEOUT" envDefault:"30s"`
}

type Storage struct {
	ConnectionString    string        `env:"AZURE_STORAGE_CONNECTION_STRING"`
	AttachmentContainer string        `env:"ATTACHMENT_CONTAINER" envDefault:"attachments"`
	SignedURLTTL        time.Duration `env:"SIGNED_URL_TTL" envDefault:"60m"`
}

// Load reads a local .env when present, then the process environment.
func Load() (*Config, error) {
	if _, err := os.Stat(".env"); err == nil {
		if err := godotenv.Load(".env"); err != nil {
			return nil, fmt.Errorf("failed to load .env: %w", err)
		}
	}
	return parse(env.Options{})
}

// LoadFrom parses the given variables instead of the process environment.
func LoadFrom(vars map[string]string) (*Config, error) {
	return parse(env.Options{Environment: vars})
}

func parse(opts env.Options) (*Config, error) {
	var cfg Config
	if err := env.ParseWithOptions(&cfg, opts); err != nil {
		return nil, apperr.Configuration("invalid environment").Wrap(err)
	}
	cfg.Dataverse.URL = strings.TrimRight(strings.TrimSpace(cfg.Dataverse.URL), "/")
	return &cfg, nil
}

// Validate reports the missing Dataverse variables by name.
func (d Dataverse) Validate() error {
	var missing []string
	for name, v := range map[string]string{
		"TENANT_ID":     d.TenantID,
		"CLIENT_ID":     d.ClientID,
		"CLIENT_SECRET": d.ClientSecret,
		"DATAVERSE_URL": d.URL,
	} {
		if strings.TrimSpace(v) == "" {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return missingErr(missing)
	}
	if !strings.HasPrefix(d.URL, "https://") {
		return apperr.Configuration("DATAVERSE_URL must be an https URL")
	}
	if d.Schema.WorkerEntitySet == "" || d.Schema.WorkerMailField == "" || d.Schema.DispatchEntitySet == "" {
		return apperr.Configuration("Dataverse schema names must not be empty")
	}
	return nil
}

// Scope is the client-credentials scope for the environment.
func (d Dataverse) Scope() string {
	return d.URL + "/.default"
}

func (f Flow) Validate() error {
	if strings.TrimSpace(f.CompleteURL) == "" {
		return missingErr([]string{"FLOW_URL_COMPLETE"})
	}
	return nil
}

// Enabled reports whether attachment links can be issued at all.
func (s Storage) Enabled() bool {
	return s.ConnectionString != ""
}

func (c *Config) String() string {
	var sb strings.Builder
	sb.WriteString("\n")
	sb.WriteString(fmt.Sprintf("  Port: %s\n", c.Server.Port))
	sb.WriteString(fmt.Sprintf("  LogLevel: %s\n", c.Server.LogLevel))
	sb.WriteString(fmt.Sprintf("  TenantID: %s\n", c.Dataverse.TenantID))
	sb.WriteString(fmt.Sprintf("  ClientID: %s\n", c.Dataverse.ClientID))
	sb.WriteString(fmt.Sprintf("  ClientSecret: %s\n", mask(c.Dataverse.ClientSecret)))
	sb.WriteString(fmt.Sprintf("  DataverseURL: %s\n", c.Dataverse.URL))
	sb.WriteString(fmt.Sprintf("  WorkerTable: %s\n", c.Dataverse.Schema.WorkerEntitySet))
	sb.WriteString(fmt.Sprintf("  DispatchTable: %s\n", c.Dataverse.Schema.DispatchEntitySet))
	sb.WriteString(fmt.Sprintf("  FlowURL: %s\n", mask(c.Flow.CompleteURL)))
	sb.WriteString(fmt.Sprintf("  StorageConnectionString: %s\n", mask(c.Storage.ConnectionString)))
	sb.WriteString(fmt.Sprintf("  AttachmentContainer: %s\n", c.Storage.AttachmentContainer))
	sb.WriteString(fmt.Sprintf("  SignedURLTTL: %s\n", c.Storage.SignedURLTTL))
	return sb.String()
}

// Flow URLs carry their own sig= token, so they are masked like secrets.
func mask(s string) string {
	if s == "" {
		return "(empty)"
	}
	return "********"
}

func missingErr(names []string) error {
	slices.Sort(names)
	return apperr.Configuration("missing environment variables: %s", strings.Join(names, ", "))
}
