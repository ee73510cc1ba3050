package experiment

type Stage string

const (
	StageIndexing    Stage = "indexing"
	StageReviewing   Stage = "reviewing"
	StageExtracting  Stage = "extracting"
	StageDetecting   Stage = "detecting"
	StagePaperDone   Stage = "paper_done"
	StagePaperFailed Stage = "paper_failed"
	StageBatchDone   Stage = "batch_done"
)

type Arm string

const (
	ArmRAG   Arm = "rag"
	ArmNoRAG Arm = "noRag"
)

// ProgressEvent is reported from the goroutine doing the work, so handlers
// must be safe for concurrent use.
type ProgressEvent struct {
	Stage        Stage  `json:"stage"`
	ExperimentID string `json:"experimentId,omitempty"`
	PaperID      string `json:"paperId,omitempty"`
	Index        int    `json:"index"`
	Arm          Arm    `json:"arm,omitempty"`
	Done         int    `json:"done"`
	Total        int    `json:"total"`
	Error        string `json:"error,omitempty"`
}
