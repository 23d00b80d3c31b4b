package main

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	ssmtypes "github.com/aws/aws-sdk-go-v2/service/ssm/types"
)

// fakeSSM stores parameters in a map and records writes.
type fakeSSM struct {
	params map[string]string
	puts   []*ssm.PutParameterInput
	getErr error
	putErr error
}

func newFakeSSM() *fakeSSM { return &fakeSSM{params: map[string]string{}} }

func (f *fakeSSM) GetParameter(_ context.Context, in *ssm.GetParameterInput, _ ...func(*ssm.Options)) (*ssm.GetParameterOutput, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	v, ok := f.params[aws.ToString(in.Name)]
	if !ok {
		return nil, &ssmtypes.ParameterNotFound{}
	}
	return &ssm.GetParameterOutput{Parameter: &ssmtypes.Parameter{Name: in.Name, Value: aws.String(v)}}, nil
}

func (f *fakeSSM) PutParameter(_ context.Context, in *ssm.PutParameterInput, _ ...func(*ssm.Options)) (*ssm.PutParameterOutput, error) {
	f.puts = append(f.puts, in)
	if f.putErr != nil {
		return nil, f.putErr
	}
	name := aws.ToString(in.Name)
	if _, ok := f.params[name]; ok && !aws.ToBool(in.Overwrite) {
		return nil, &ssmtypes.ParameterAlreadyExists{}
	}
	f.params[name] = aws.ToString(in.Value)
	return &ssm.PutParameterOutput{Version: 1}, nil
}

func newTestManager(f *fakeSSM, logs io.Writer) *SSMManager {
	return NewSSMManagerWithClient(f, "dev", slog.New(slog.NewTextHandler(logs, nil)))
}

func TestPath(t *testing.T) {
	m := newTestManager(newFakeSSM(), io.Discard)
	if got := m.Path("database_url"); got != "/dev/upkeep/database_url" {
		t.Errorf("Path = %q", got)
	}
}

func TestExists(t *testing.T) {
	f := newFakeSSM()
	f.params["/dev/upkeep/admin_api_key"] = "x"
	m := newTestManager(f, io.Discard)

	ok, err := m.Exists(context.Background(), "/dev/upkeep/admin_api_key")
	if err != nil || !ok {
		t.Errorf("Exists(existing) = %v, %v", ok, err)
	}
	ok, err = m.Exists(context.Background(), "/dev/upkeep/missing")
	if err != nil || ok {
		t.Errorf("Exists(missing) = %v, %v", ok, err)
	}

	f.getErr = errors.New("access denied")
	if _, err := m.Exists(context.Background(), "/dev/upkeep/missing"); err == nil {
		t.Error("expected error to propagate")
	}
}

func TestPutSecret(t *testing.T) {
	f := newFakeSSM()
	var logs bytes.Buffer
	m := newTestManager(f, &logs)

	if err := m.PutSecret(context.Background(), "/dev/upkeep/admin_api_key", "s3cr3t-value", false); err != nil {
		t.Fatalf("PutSecret: %v", err)
	}
	if len(f.puts) != 1 || f.puts[0].Type != ssmtypes.ParameterTypeSecureString {
		t.Fatalf("unexpected puts: %+v", f.puts)
	}
	if strings.Contains(logs.String(), "s3cr3t-value") {
		t.Error("secret value leaked into logs")
	}

	err := m.PutSecret(context.Background(), "/dev/upkeep/admin_api_key", "other", false)
	if err == nil || !strings.Contains(err.Error(), "already exists") {
		t.Errorf("expected already-exists error, got %v", err)
	}
	if err := m.PutSecret(context.Background(), "/dev/upkeep/admin_api_key", "", true); err == nil {
		t.Error("expected empty value to be rejected")
	}
}
