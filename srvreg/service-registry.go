package srvreg

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/ahmadzakiakmal/carbon-ledger/apperr"
	"github.com/ahmadzakiakmal/carbon-ledger/canonical"
	"github.com/ahmadzakiakmal/carbon-ledger/footprint"
	"github.com/ahmadzakiakmal/carbon-ledger/metrics"
	"github.com/ahmadzakiakmal/carbon-ledger/proofing"
	"github.com/ahmadzakiakmal/carbon-ledger/sensorclient"
	"github.com/ahmadzakiakmal/carbon-ledger/signer"
	"github.com/ahmadzakiakmal/carbon-ledger/verifier"
	cmtlog "github.com/cometbft/cometbft/libs/log"
)

// Task types served by RegisterDefaultServices
const (
	TaskSetShipmentInformation = "set_shipment_information"
	TaskDefineTemplate         = "define_product_footprint_template"
	TaskTransportProcedure     = "transport_procedure"
	TaskHubProcedure           = "hub_procedure"
	TaskCollectHocTocData      = "collect_hoc_toc_data"
	TaskSendToProofing         = "send_to_proofing_service"
	TaskVerifyReceipt          = "verify_receipt"
	TaskDetermineJobSequence   = "determine_job_sequence"
	TaskChainSummary           = "get_tce_chain_summary"
)

// Job outcomes
const (
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

// Request is one workflow job handed to a task handler
type Request struct {
	TaskType           string                     `json:"-"`
	JobKey             string                     `json:"jobKey"`
	ProcessInstanceKey string                     `json:"processInstanceKey"`
	ElementID          string                     `json:"elementId"`
	Variables          map[string]json.RawMessage `json:"variables"`
}

// Response is the outcome of one job
type Response struct {
	Status       string         `json:"status"`
	Variables    map[string]any `json:"variables,omitempty"`
	ErrorMessage string         `json:"errorMessage,omitempty"`
	ErrorKind    string         `json:"errorKind,omitempty"`
	Retryable    bool           `json:"retryable,omitempty"`
}

// TaskHandler handles one task type. It returns the variables to merge
// into the workflow instance.
type TaskHandler func(ctx context.Context, req *Request) (map[string]any, error)

// EvidenceFetcher fetches signed sensor evidence for a new chain link
type EvidenceFetcher interface {
	FetchEvidence(ctx context.Context, shipmentID, linkID string, wf sensorclient.WorkflowContext) (*sensorclient.Evidence, error)
}

// ActivitySigner signs an activity attribute bag
type ActivitySigner interface {
	Sign(bag *canonical.Bag) (*signer.Envelope, error)
}

// EnvelopeStore keeps signed activities until the shipment is proofed
type EnvelopeStore interface {
	Put(shipmentID, key string, env signer.Envelope) error
	List(shipmentID string) (map[string]signer.Envelope, error)
	Export(shipmentID, path string) error
	Discard(shipmentID string) error
}

// ProofSender runs the proofing round-trip
type ProofSender interface {
	Send(ctx context.Context, doc *proofing.Document) (*proofing.Receipt, error)
}

// ReceiptVerifier verifies a stored proof receipt
type ReceiptVerifier interface {
	VerifyFile(ctx context.Context, path string) (*verifier.Result, error)
}

// Dependencies are the collaborators the task handlers call into
type Dependencies struct {
	Assembler *footprint.Assembler
	Chain     *footprint.ChainBuilder
	Sensors   EvidenceFetcher
	Operators proofing.OperatorResolver
	Signer    ActivitySigner
	Journal   EnvelopeStore
	Proofing  ProofSender
	Verifier  ReceiptVerifier

	ReceiptPath          string
	ActivitiesOutputPath string
	JobSequence          []string

	Metrics *metrics.Metrics
}

// ServiceRegistry manages all task handlers
type ServiceRegistry struct {
	handlers map[string]TaskHandler
	deps     Dependencies
	logger   cmtlog.Logger
}

// NewServiceRegistry creates a new service registry
func NewServiceRegistry(deps Dependencies, logger cmtlog.Logger) *ServiceRegistry {
	if deps.Assembler == nil {
		deps.Assembler = footprint.NewAssembler("", "")
	}
	if deps.Chain == nil {
		deps.Chain = footprint.NewChainBuilder(footprint.NewSimulatedEmissions(nil))
	}
	return &ServiceRegistry{
		handlers: make(map[string]TaskHandler),
		deps:     deps,
		logger:   logger,
	}
}

// RegisterHandler registers a handler for a task type
func (sr *ServiceRegistry) RegisterHandler(taskType string, handler TaskHandler) {
	sr.handlers[taskType] = handler
	sr.logger.Info("✓ Registered handler", "task", taskType)
}

// GetHandler finds the handler for a task type
func (sr *ServiceRegistry) GetHandler(taskType string) (TaskHandler, bool) {
	handler, exists := sr.handlers[taskType]
	return handler, exists
}

// TaskTypes lists the registered task types
func (sr *ServiceRegistry) TaskTypes() []string {
	out := make([]string, 0, len(sr.handlers))
	for t := range sr.handlers {
		out = append(out, t)
	}
	return out
}

// RegisterDefaultServices sets up every workflow task
func (sr *ServiceRegistry) RegisterDefaultServices() {
	sr.logger.Info("Registering workflow tasks...")

	sr.RegisterHandler(TaskSetShipmentInformation, sr.SetShipmentInformationHandler)
	sr.RegisterHandler(TaskDefineTemplate, sr.DefineTemplateHandler)
	sr.RegisterHandler(TaskTransportProcedure, sr.TransportProcedureHandler)
	sr.RegisterHandler(TaskHubProcedure, sr.HubProcedureHandler)
	sr.RegisterHandler(TaskCollectHocTocData, sr.CollectHocTocDataHandler)
	sr.RegisterHandler(TaskSendToProofing, sr.SendToProofingHandler)
	sr.RegisterHandler(TaskVerifyReceipt, sr.VerifyReceiptHandler)
	sr.RegisterHandler(TaskDetermineJobSequence, sr.DetermineJobSequenceHandler)
	sr.RegisterHandler(TaskChainSummary, sr.ChainSummaryHandler)

	sr.logger.Info("✓ All tasks registered", "count", len(sr.handlers))
}

// Execute runs the handler for req.TaskType. Handler errors become a failed
// response; the second return value is false for unknown task types.
func (sr *ServiceRegistry) Execute(ctx context.Context, req *Request) (*Response, bool) {
	handler, found := sr.GetHandler(req.TaskType)
	if !found {
		return nil, false
	}

	start := time.Now()
	sr.logger.Info("Handling job", "task", req.TaskType, "job_key", req.JobKey)
	vars, err := handler(ctx, req)
	if err != nil {
		sr.deps.Metrics.ObserveJob(req.TaskType, StatusFailed, time.Since(start))
		return sr.failure(req, err), true
	}

	sr.deps.Metrics.ObserveJob(req.TaskType, StatusCompleted, time.Since(start))
	sr.logger.Info("Job completed", "task", req.TaskType, "job_key", req.JobKey, "duration", time.Since(start))
	return &Response{Status: StatusCompleted, Variables: vars}, true
}

func (sr *ServiceRegistry) failure(req *Request, err error) *Response {
	kind := apperr.KindOf(err)
	sr.logger.Error("Job failed", "task", req.TaskType, "job_key", req.JobKey, "kind", kind, "err", err)
	return &Response{
		Status:       StatusFailed,
		ErrorMessage: fmt.Sprintf("Failed to handle job %s. Error: %s", req.JobKey, err.Error()),
		ErrorKind:    string(kind),
		Retryable:    apperr.IsRetryable(err),
	}
}
