package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"time"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/fiscalops/apbots/constants"
	"github.com/fiscalops/apbots/internal/common"
	"github.com/fiscalops/apbots/internal/entity"
	"github.com/fiscalops/apbots/internal/repository"
	"github.com/fiscalops/apbots/internal/runs"
)

// RunService is the part of runs.Service the control plane drives.
type RunService interface {
	CreateRun(ctx context.Context, nr runs.NewRun) (*entity.BotRun, error)
	Enqueue(ctx context.Context, runID string) error
	RequestCancel(ctx context.Context, runID, reason string) error
	Get(ctx context.Context, runID string) (*entity.BotRun, error)
	List(ctx context.Context, f repository.RunFilter) ([]entity.BotRun, error)
}

// Reporter renders a run as an XLSX workbook.
type Reporter interface {
	RunReport(ctx context.Context, runID string) ([]byte, error)
}

type RunsServer struct {
	runs     RunService
	reporter Reporter
	testMode bool
	logger   *slog.Logger
}

// NewRunsServer wires the control plane. testMode is the default for
// StartRun requests that do not set test_mode.
func NewRunsServer(svc RunService, reporter Reporter, testMode bool, logger *slog.Logger) *RunsServer {
	if logger == nil {
		logger = slog.Default()
	}
	return &RunsServer{runs: svc, reporter: reporter, testMode: testMode, logger: logger}
}

// StartRun creates a run over a directory and queues it.
// Fields: bot_name, identifier, directory, test_mode.
func (s *RunsServer) StartRun(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	f := req.GetFields()
	nr := runs.NewRun{
		BotName:    stringField(f, "bot_name"),
		Identifier: stringField(f, "identifier"),
		Directory:  stringField(f, "directory"),
		TestMode:   s.testMode,
	}
	if v, ok := f["test_mode"]; ok {
		nr.TestMode = v.GetBoolValue()
	}

	run, err := s.runs.CreateRun(ctx, nr)
	if err != nil {
		s.logger.Warn("grpc.start_run.failed", "bot", nr.BotName, "error", err)
		return nil, common.ToStatus(err)
	}
	if err := s.runs.Enqueue(ctx, run.RunID); err != nil {
		s.logger.Error("grpc.start_run.enqueue_failed", "run_id", run.RunID, "error", err)
		return nil, status.Errorf(codes.Unavailable, "enqueue %s: %v", run.RunID, err)
	}
	run.Status = constants.RunStatusQueued
	return runStruct(*run)
}

func (s *RunsServer) GetRun(ctx context.Context, req *wrapperspb.StringValue) (*structpb.Struct, error) {
	runID := strings.TrimSpace(req.GetValue())
	if runID == "" {
		return nil, common.InvalidArgumentError("run id is required")
	}
	run, err := s.runs.Get(ctx, runID)
	if err != nil {
		return nil, common.ToStatus(err)
	}
	return runStruct(*run)
}

// ListRuns filters by bot_name and status, newest first, at most limit rows.
func (s *RunsServer) ListRuns(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	f := req.GetFields()
	filter := repository.RunFilter{
		BotName: stringField(f, "bot_name"),
		Status:  constants.RunStatus(stringField(f, "status")),
		Limit:   int(f["limit"].GetNumberValue()),
	}
	list, err := s.runs.List(ctx, filter)
	if err != nil {
		s.logger.Warn("grpc.list_runs.failed", "error", err)
		return nil, common.ToStatus(err)
	}
	items := make([]any, 0, len(list))
	for _, r := range list {
		items = append(items, runMap(r))
	}
	out, err := structpb.NewStruct(map[string]any{"runs": items})
	if err != nil {
		return nil, status.Error(codes.Internal, err.Error())
	}
	return out, nil
}

// CancelRun raises the cancel flag. Fields: run_id, reason.
func (s *RunsServer) CancelRun(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	f := req.GetFields()
	runID := stringField(f, "run_id")
	if runID == "" {
		return nil, common.InvalidArgumentError("run_id is required")
	}
	if err := s.runs.RequestCancel(ctx, runID, stringField(f, "reason")); err != nil {
		return nil, common.ToStatus(err)
	}
	run, err := s.runs.Get(ctx, runID)
	if err != nil {
		return nil, common.ToStatus(err)
	}
	return runStruct(*run)
}

func (s *RunsServer) ExportRun(ctx context.Context, req *wrapperspb.StringValue) (*wrapperspb.BytesValue, error) {
	runID := strings.TrimSpace(req.GetValue())
	if runID == "" {
		return nil, common.InvalidArgumentError("run id is required")
	}
	if s.reporter == nil {
		return nil, status.Error(codes.Unimplemented, "export is not configured")
	}
	xlsx, err := s.reporter.RunReport(ctx, runID)
	if err != nil {
		s.logger.Error("export.xlsx.failed", "run_id", runID, "error", err)
		return nil, common.ToStatus(err)
	}
	return wrapperspb.Bytes(xlsx), nil
}

func stringField(f map[string]*structpb.Value, key string) string {
	return strings.TrimSpace(f[key].GetStringValue())
}

func runMap(r entity.BotRun) map[string]any {
	m := map[string]any{
		"runid":            r.RunID,
		"bot_name":         r.BotName,
		"status":           string(r.Status),
		"cancel_requested": r.CancelRequested,
		"test_mode":        r.TestMode,
		"created_at":       r.CreatedAt.UTC().Format(time.RFC3339Nano),
		"updated_at":       r.UpdatedAt.UTC().Format(time.RFC3339Nano),
	}
	if r.Message != nil {
		m["message"] = *r.Message
	}
	if len(r.Context) > 0 {
		var rc map[string]any
		if err := json.Unmarshal(r.Context, &rc); err == nil {
			m["context"] = rc
		}
	}
	return m
}

func runStruct(r entity.BotRun) (*structpb.Struct, error) {
	out, err := structpb.NewStruct(runMap(r))
	if err != nil {
		return nil, status.Error(codes.Internal, err.Error())
	}
	return out, nil
}
