// Package main implements the upkeep bootstrap tool. It provisions the
// secret parameters that config.LoadConfig resolves through *_SSM_PARAM
// references and prints the environment lines that point a deployment at
// them.
//
// Parameters live under /{env}/upkeep/{key}:
//
//	database_url      DATABASE_URL       prompted, connection verified
//	sendgrid_api_key  SENDGRID_API_KEY   prompted, optional, verified against SendGrid
//	admin_api_key     ADMIN_API_KEY      generated
//
// Existing parameters are detected first and the operator chooses to keep
// or replace them, so the tool can be re-run safely.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sts"
)

var validEnvironments = map[string]bool{
	"dev":     true,
	"staging": true,
	"prod":    true,
}

// Session is the verified AWS identity the tool writes as.
type Session struct {
	Environment string
	Profile     string
	Region      string
	AccountID   string
	CallerARN   string
	AWSConfig   aws.Config
	Logger      *slog.Logger
}

func main() {
	envFlag := flag.String("env", "", "Target environment (dev/staging/prod) [required]")
	profileFlag := flag.String("profile", "", "AWS CLI profile (default: credential chain)")
	regionFlag := flag.String("region", "us-east-1", "AWS region")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "upkeep bootstrap\n\n")
		fmt.Fprintf(os.Stderr, "Stores the upkeep secrets in SSM Parameter Store.\n\n")
		fmt.Fprintf(os.Stderr, "Usage:\n  bootstrap --env=dev [--profile=NAME] [--region=REGION]\n\nFlags:\n")
		flag.PrintDefaults()
	}
	flag.Parse()

	if *envFlag == "" {
		fmt.Fprintf(os.Stderr, "error: --env is required\n\n")
		flag.Usage()
		os.Exit(1)
	}
	if !validEnvironments[*envFlag] {
		fmt.Fprintf(os.Stderr, "error: invalid environment %q (must be dev, staging, or prod)\n", *envFlag)
		os.Exit(1)
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	sess, err := newSession(ctx, *envFlag, *profileFlag, *regionFlag, logger)
	if err != nil {
		logger.Error("initialization failed", "error", err)
		os.Exit(1)
	}

	if sess.Environment == "prod" && !confirmProduction(sess) {
		fmt.Fprintln(os.Stderr, "Aborted. No changes were made.")
		return
	}

	runner := NewRunner(NewSSMManager(sess), NewValidator(), os.Stdin, os.Stderr)
	results, err := runner.Run(ctx)
	if err != nil {
		logger.Error("bootstrap failed", "error", err)
		os.Exit(1)
	}
	printEnvReferences(os.Stdout, results)

	logger.Info("bootstrap complete",
		"env", sess.Environment,
		"account", sess.AccountID,
		"region", sess.Region,
	)
}

// newSession loads AWS credentials and confirms them with STS before any
// parameter is touched.
func newSession(ctx context.Context, env, profile, region string, logger *slog.Logger) (*Session, error) {
	var opts []func(*awsconfig.LoadOptions) error
	if region != "" {
		opts = append(opts, awsconfig.WithRegion(region))
	}
	if profile != "" {
		opts = append(opts, awsconfig.WithSharedConfigProfile(profile))
	}

	cfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("loading AWS config: %w", err)
	}

	identityCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	identity, err := sts.NewFromConfig(cfg).GetCallerIdentity(identityCtx, &sts.GetCallerIdentityInput{})
	if err != nil {
		return nil, fmt.Errorf("verifying AWS identity: %w (profile %q, region %q)", err, profile, region)
	}

	sess := &Session{
		Environment: env,
		Profile:     profile,
		Region:      region,
		AccountID:   aws.ToString(identity.Account),
		CallerARN:   aws.ToString(identity.Arn),
		AWSConfig:   cfg,
		Logger:      logger,
	}
	logger.Info("AWS identity verified",
		"account_id", sess.AccountID,
		"arn", sess.CallerARN,
		"region", region,
	)
	return sess, nil
}

// confirmProduction requires the operator to type "yes".
func confirmProduction(sess *Session) bool {
	fmt.Fprintln(os.Stderr)
	fmt.Fprintln(os.Stderr, "  WARNING: writing PRODUCTION parameters")
	fmt.Fprintf(os.Stderr, "  Account: %s\n", sess.AccountID)
	fmt.Fprintf(os.Stderr, "  Region:  %s\n", sess.Region)
	fmt.Fprintf(os.Stderr, "  ARN:     %s\n", sess.CallerARN)
	fmt.Fprint(os.Stderr, "\nType 'yes' to continue: ")

	scanner := bufio.NewScanner(os.Stdin)
	if !scanner.Scan() {
		return false
	}
	return strings.EqualFold(strings.TrimSpace(scanner.Text()), "yes")
}
