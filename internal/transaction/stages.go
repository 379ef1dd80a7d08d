package transaction

import "strings"

// Stage is a named position in the fixed document pipeline.
type Stage string

const (
	StageInitial            Stage = "initial"
	StageDataRetrieved      Stage = "data_retrieved"
	StageDocumentGenerated  Stage = "document_generated"
	StageStored             Stage = "stored"
	StageSignatureRequested Stage = "signature_requested"
	StageSignatureCompleted Stage = "signature_completed"
	StageNotificationSent   Stage = "notification_sent"
	StageCompleted          Stage = "completed"
	StageFailed             Stage = "failed"
)

// pipeline is the forward order; failed sits outside it.
var pipeline = []Stage{
	StageInitial,
	StageDataRetrieved,
	StageDocumentGenerated,
	StageStored,
	StageSignatureRequested,
	StageSignatureCompleted,
	StageNotificationSent,
	StageCompleted,
}

var stageOrdinals = func() map[Stage]int {
	m := make(map[Stage]int, len(pipeline))
	for i, stage := range pipeline {
		m[stage] = i
	}
	return m
}()

// Pipeline returns the ordered list of forward stages.
func Pipeline() []Stage {
	cp := make([]Stage, len(pipeline))
	copy(cp, pipeline)
	return cp
}

// AllStages returns the forward stages followed by failed.
func AllStages() []Stage {
	return append(Pipeline(), StageFailed)
}

// ParseStage converts a string into a known Stage.
func ParseStage(value string) (Stage, bool) {
	normalized := Stage(strings.ToLower(strings.TrimSpace(value)))
	if normalized == StageFailed {
		return normalized, true
	}
	_, ok := stageOrdinals[normalized]
	return normalized, ok
}

// Ordinal returns the position of s in the pipeline, or -1 for failed and
// unknown stages.
func (s Stage) Ordinal() int {
	if idx, ok := stageOrdinals[s]; ok {
		return idx
	}
	return -1
}

// Next returns the stage that follows s in the pipeline.
func (s Stage) Next() (Stage, bool) {
	idx, ok := stageOrdinals[s]
	if !ok || idx+1 >= len(pipeline) {
		return "", false
	}
	return pipeline[idx+1], true
}

// IsTerminal reports whether s ends the pipeline.
func (s Stage) IsTerminal() bool {
	return s == StageCompleted || s == StageFailed
}

// AwaitsExternalEvent reports whether transactions at s are parked until an
// external asynchronous event is observed.
func (s Stage) AwaitsExternalEvent() bool {
	return s == StageSignatureRequested
}

// IsPostSignature reports whether s is at or after signature completion.
func (s Stage) IsPostSignature() bool {
	return s.Ordinal() >= StageSignatureCompleted.Ordinal()
}

// CanTransition reports whether moving from one stage to another keeps the
// stage strictly moving forward. Failed is reachable from any non-terminal stage.
func CanTransition(from, to Stage) bool {
	if from.IsTerminal() {
		return false
	}
	if to == StageFailed {
		return true
	}
	fromIdx, ok := stageOrdinals[from]
	if !ok {
		return false
	}
	toIdx, ok := stageOrdinals[to]
	if !ok {
		return false
	}
	return toIdx > fromIdx
}
