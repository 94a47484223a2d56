package deploy

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// StepStatus is the outcome of a single step.
type StepStatus string

const (
	StepConfirmed StepStatus = "confirmed"
	StepFailed    StepStatus = "failed"
	StepSkipped   StepStatus = "skipped"
)

// StepResult is the outcome of one contract deployment.
type StepResult struct {
	Contract string
	Status   StepStatus
	Address  common.Address
	TxHash   common.Hash
	Err      *DeploymentError
}

// Result holds the outcome of a run. Steps are in plan order.
type Result struct {
	UserRegistry           common.Address
	ProviderRegistry       common.Address
	PreConfCommitmentStore common.Address

	Steps []StepResult
}

// Step returns the result for the named contract.
func (r *Result) Step(contract string) (StepResult, bool) {
	for _, s := range r.Steps {
		if s.Contract == contract {
			return s, true
		}
	}
	return StepResult{}, false
}

// Succeeded reports whether every step was confirmed.
func (r *Result) Succeeded() bool {
	if len(r.Steps) == 0 {
		return false
	}
	for _, s := range r.Steps {
		if s.Status != StepConfirmed {
			return false
		}
	}
	return true
}

// WriteReport prints one line per confirmed contract in plan order.
func (r *Result) WriteReport(w io.Writer) error {
	for _, s := range r.Steps {
		if s.Status != StepConfirmed {
			continue
		}
		if err := writeReportLine(w, s.Contract, s.Address); err != nil {
			return err
		}
	}
	return nil
}

func writeReportLine(w io.Writer, contract string, addr common.Address) error {
	_, err := fmt.Fprintf(w, "%s deployed to: %s\n", contract, addr.Hex())
	return err
}

// ReportWriter is a Recorder that prints each report line as soon as the contract is
// confirmed, so an interrupted run still shows what it deployed.
type ReportWriter struct {
	mu  sync.Mutex
	w   io.Writer
	err error
}

// NewReportWriter returns a ReportWriter printing to w.
func NewReportWriter(w io.Writer) *ReportWriter {
	return &ReportWriter{w: w}
}

func (r *ReportWriter) Submitted(context.Context, string, common.Hash) {}

func (r *ReportWriter) Confirmed(_ context.Context, contract string, addr common.Address, _ time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := writeReportLine(r.w, contract, addr); err != nil && r.err == nil {
		r.err = err
	}
}

func (r *ReportWriter) Failed(context.Context, string, *DeploymentError) {}

// Err returns the first write error.
func (r *ReportWriter) Err() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.err
}
