package model

// ResponseResult описывает итог обработки ответа покупателя.
type ResponseResult string

const (
	ResultSuccess          ResponseResult = "success"
	ResultNotFound         ResponseResult = "not_found"
	ResultAlreadyResponded ResponseResult = "already_responded"
	ResultExpired          ResponseResult = "expired"
	ResultPersistenceError ResponseResult = "persistence_error"
)

// Message возвращает текст, показываемый покупателю.
func (r ResponseResult) Message() string {
	switch r {
	case ResultSuccess:
		return "Order statuses updated successfully"
	case ResultNotFound:
		return "No orders found for the given orderId"
	case ResultAlreadyResponded:
		return "Customer already submitted a response"
	case ResultExpired:
		return "Customer has exceeded the time limit"
	case ResultPersistenceError:
		return "Database update failed"
	default:
		return "Unknown result"
	}
}

// OutcomeStatus описывает итог сверки одной позиции.
type OutcomeStatus string

const (
	OutcomeConfirmed OutcomeStatus = "Confirmed"
	OutcomeFailed    OutcomeStatus = "Failed"
	OutcomeSkipped   OutcomeStatus = "Skipped"
)

// ReconcileStep называет шаг сверки, на котором произошла ошибка.
type ReconcileStep string

const (
	StepResolveVariant ReconcileStep = "resolve_variant"
	StepBeginEdit      ReconcileStep = "begin_edit"
	StepAddItem        ReconcileStep = "add_item"
	StepCommitAdd      ReconcileStep = "commit_add"
	StepMarkAdded      ReconcileStep = "mark_added"
	StepLocateOriginal ReconcileStep = "locate_original"
	StepRemoveOriginal ReconcileStep = "remove_original"
	StepCommitRemove   ReconcileStep = "commit_remove"
	StepMarkConfirmed  ReconcileStep = "mark_confirmed"
)

// LineItemOutcome описывает результат применения решения по одной позиции.
type LineItemOutcome struct {
	RecordID              string         `json:"recordId"`
	OriginalProductRef    string         `json:"originalProductId"`
	ReplacementProductRef string         `json:"replacementProductId"`
	Decision              LineItemStatus `json:"decision"`
	Status                OutcomeStatus  `json:"status"`
	Step                  ReconcileStep  `json:"step,omitempty"`
	Error                 string         `json:"error,omitempty"`
}

// BatchReconciliation описывает результат сверки одного пакета при массовом запуске.
type BatchReconciliation struct {
	OrderID   string            `json:"orderId"`
	OrderName string            `json:"orderName"`
	Outcomes  []LineItemOutcome `json:"outcomes"`
	Error     string            `json:"error,omitempty"`
}
