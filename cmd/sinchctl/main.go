package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/openCoreEMR/oce-module-sinch-conversations/internal/database"
	"github.com/openCoreEMR/oce-module-sinch-conversations/internal/models"
	"github.com/openCoreEMR/oce-module-sinch-conversations/internal/retry"
	"github.com/openCoreEMR/oce-module-sinch-conversations/internal/service"
	"github.com/openCoreEMR/oce-module-sinch-conversations/internal/sinch"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

const usage = `Usage: sinchctl <command> [options]

Commands:
  inspect            Show project, app and channel configuration
  webhook:list       List registered webhook subscriptions
  webhook:create     Register a webhook subscription: webhook:create <url> [--triggers ...]
  templates:sync     Push local template definitions to the vendor

Credentials are taken from flags or the SINCH_PROJECT_ID, SINCH_APP_ID,
SINCH_API_KEY and SINCH_REGION environment variables. The API secret is
only ever read from SINCH_API_SECRET.
`

func main() {
	_ = godotenv.Load()

	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	var err error
	switch os.Args[1] {
	case "inspect":
		err = runInspect(ctx, os.Args[2:])
	case "webhook:list":
		err = runWebhookList(ctx, os.Args[2:])
	case "webhook:create":
		err = runWebhookCreate(ctx, os.Args[2:])
	case "templates:sync":
		err = runTemplateSync(ctx, os.Args[2:])
	case "help", "-h", "--help":
		fmt.Print(usage)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n%s", os.Args[1], usage)
		os.Exit(2)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// credentialFlags registers the shared credential flags on a flag set,
// defaulting each to its environment variable. The secret has no flag.
func credentialFlags(fs *flag.FlagSet) *models.SinchConfig {
	cfg := &models.SinchConfig{}
	fs.StringVar(&cfg.ProjectID, "project-id", os.Getenv("SINCH_PROJECT_ID"), "Sinch project ID")
	fs.StringVar(&cfg.AppID, "app-id", os.Getenv("SINCH_APP_ID"), "Sinch app ID")
	fs.StringVar(&cfg.APIKey, "api-key", os.Getenv("SINCH_API_KEY"), "Sinch API key")
	fs.StringVar(&cfg.Region, "region", regionOrDefault(), "Sinch region (us|eu)")
	return cfg
}

func regionOrDefault() string {
	if region := os.Getenv("SINCH_REGION"); region != "" {
		return region
	}
	return "us"
}

func newClient(cfg *models.SinchConfig) (*sinch.Client, error) {
	cfg.APISecret = os.Getenv("SINCH_API_SECRET")

	if cfg.ProjectID == "" || cfg.AppID == "" || cfg.APIKey == "" {
		return nil, fmt.Errorf("project id, app id and api key are required (flags or SINCH_* environment variables)")
	}
	if cfg.APISecret == "" {
		return nil, fmt.Errorf("SINCH_API_SECRET environment variable is required")
	}

	logger := logrus.New()
	logger.SetLevel(logrus.WarnLevel)

	return sinch.NewClient(*cfg, retry.DefaultConfig(), logger), nil
}

func runInspect(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("inspect", flag.ExitOnError)
	cfg := credentialFlags(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}

	client, err := newClient(cfg)
	if err != nil {
		return err
	}

	if err := client.TestConnection(ctx); err != nil {
		return fmt.Errorf("connection test failed: %w", err)
	}
	fmt.Println("Connection: OK")

	app, err := client.GetApp(ctx, cfg.AppID)
	if err != nil {
		return err
	}

	fmt.Printf("Project:  %s\n", cfg.ProjectID)
	fmt.Printf("App:      %s (%s)\n", app.DisplayName, app.ID)
	if app.DispatchRetentionPolicy != nil {
		fmt.Printf("Retention: %s\n", app.DispatchRetentionPolicy.RetentionType)
	}

	fmt.Println("Channels:")
	if len(app.ChannelCredentials) == 0 {
		fmt.Println("  (none configured)")
	}
	for _, cred := range app.ChannelCredentials {
		status := "UNKNOWN"
		if cred.State != nil {
			status = cred.State.Status
		}
		identity := ""
		if cred.StaticBearer != nil {
			identity = cred.StaticBearer.ClaimedIdentity
		}
		fmt.Printf("  %-10s %-8s %s\n", cred.Channel, status, identity)
	}

	return nil
}

func runWebhookList(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("webhook:list", flag.ExitOnError)
	cfg := credentialFlags(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}

	client, err := newClient(cfg)
	if err != nil {
		return err
	}

	webhooks, err := client.ListWebhooks(ctx)
	if err != nil {
		return err
	}

	if len(webhooks) == 0 {
		fmt.Println("No webhooks registered")
		return nil
	}

	for _, wh := range webhooks {
		fmt.Printf("%s  %s\n  triggers: %s\n", wh.ID, wh.Target, strings.Join(wh.Triggers, ", "))
	}
	return nil
}

func runWebhookCreate(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("webhook:create", flag.ExitOnError)
	cfg := credentialFlags(fs)
	triggers := fs.String("triggers", "MESSAGE_INBOUND,MESSAGE_DELIVERY", "Comma-separated event triggers")
	if err := fs.Parse(args); err != nil {
		return err
	}

	if fs.NArg() != 1 {
		return fmt.Errorf("usage: webhook:create <target-url> [--triggers ...]")
	}
	target := fs.Arg(0)
	if !strings.HasPrefix(target, "https://") {
		return fmt.Errorf("webhook target must be an https URL")
	}

	client, err := newClient(cfg)
	if err != nil {
		return err
	}

	// The signing secret is shared with the receiving server, so both read
	// it from the same environment variable.
	secret := os.Getenv("OCE_SINCH_WEBHOOK_SECRET")

	created, err := client.CreateWebhook(ctx, target, strings.Split(*triggers, ","), secret)
	if err != nil {
		return err
	}

	fmt.Printf("Created webhook %s -> %s\n", created.ID, created.Target)
	if secret == "" {
		fmt.Println("Warning: no OCE_SINCH_WEBHOOK_SECRET set; deliveries will be unsigned")
	}
	return nil
}

func runTemplateSync(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("templates:sync", flag.ExitOnError)
	cfg := credentialFlags(fs)
	dbPath := fs.String("db", "./sinch-conversations.db", "Path to the database file")
	if err := fs.Parse(args); err != nil {
		return err
	}

	client, err := newClient(cfg)
	if err != nil {
		return err
	}

	db, err := database.New(*dbPath)
	if err != nil {
		return err
	}
	defer db.Close()

	logger := logrus.New()
	logger.SetLevel(logrus.WarnLevel)

	result, err := service.NewTemplateService(db, client, logger).Sync(ctx)
	if err != nil {
		return err
	}

	fmt.Printf("Created: %d\n", len(result.Created))
	for _, key := range result.Created {
		fmt.Printf("  + %s\n", key)
	}
	fmt.Printf("Skipped: %d\n", len(result.Skipped))
	for _, key := range result.Skipped {
		fmt.Printf("  = %s\n", key)
	}
	return nil
}
