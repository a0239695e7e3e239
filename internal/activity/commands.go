package activity

import "strings"

// StartCmd opens a new activity for an operator.
type StartCmd struct {
	OperatorID  string
	ProcessID   string
	WorkOrderID string
	PlannedQty  int
	DeviceID    string
	MachineID   *uint
	HeadsInUse  []int
}

// Validate checks the command's shape before any store access.
func (c *StartCmd) Validate() error {
	c.OperatorID = strings.TrimSpace(c.OperatorID)
	c.ProcessID = strings.TrimSpace(c.ProcessID)
	c.WorkOrderID = strings.TrimSpace(c.WorkOrderID)
	switch {
	case c.OperatorID == "":
		return invalidArg("operator id is required")
	case c.ProcessID == "":
		return invalidArg("process id is required")
	case c.WorkOrderID == "":
		return invalidArg("work order id is required")
	case c.PlannedQty < 1:
		return invalidArg("planned quantity must be >= 1")
	}
	if len(c.HeadsInUse) > 0 && c.MachineID == nil {
		return invalidArg("heads in use require a machine")
	}
	return validateHeads(c.HeadsInUse)
}

func validateHeads(heads []int) error {
	seen := make(map[int]bool, len(heads))
	for _, h := range heads {
		if h < 1 {
			return invalidArg("head numbers must be >= 1")
		}
		if seen[h] {
			return invalidArg("head %d listed twice", h)
		}
		seen[h] = true
	}
	return nil
}

// RegisterPieceCmd records completion of one piece.
type RegisterPieceCmd struct {
	ActivityID    string
	Sequence      int
	CumulativeSec int64
}

// Validate checks the command's shape before any store access.
func (c *RegisterPieceCmd) Validate() error {
	switch {
	case strings.TrimSpace(c.ActivityID) == "":
		return invalidArg("activity id is required")
	case c.Sequence < 1:
		return invalidArg("piece number must be >= 1")
	case c.CumulativeSec < 0:
		return invalidArg("elapsed time must be >= 0")
	}
	return nil
}

// PauseCmd suspends an active activity.
type PauseCmd struct {
	ActivityID string
	Reason     string
}

// Validate checks the command's shape before any store access.
func (c *PauseCmd) Validate() error {
	if strings.TrimSpace(c.ActivityID) == "" {
		return invalidArg("activity id is required")
	}
	return nil
}

// ResumeCmd continues a paused activity.
type ResumeCmd struct {
	ActivityID string
}

// Validate checks the command's shape before any store access.
func (c *ResumeCmd) Validate() error {
	if strings.TrimSpace(c.ActivityID) == "" {
		return invalidArg("activity id is required")
	}
	return nil
}

// FinishCmd closes an activity. A nil RealizedQty defaults to the number of
// registered pieces.
type FinishCmd struct {
	ActivityID  string
	RealizedQty *int
	ScrapQty    int
	ScrapReason string
}

// Validate checks the command's shape before any store access.
func (c *FinishCmd) Validate() error {
	c.ScrapReason = strings.TrimSpace(c.ScrapReason)
	switch {
	case strings.TrimSpace(c.ActivityID) == "":
		return invalidArg("activity id is required")
	case c.RealizedQty != nil && *c.RealizedQty < 0:
		return invalidArg("realized quantity must be >= 0")
	case c.ScrapQty < 0:
		return invalidArg("scrap quantity must be >= 0")
	case c.ScrapQty > 0 && c.ScrapReason == "":
		return newError(ErrInvalidArgument, MsgScrapReasonRequired)
	}
	return nil
}

// ReportProblemCmd reports a stoppage on one head of the activity's machine.
type ReportProblemCmd struct {
	ActivityID  string
	Head        int
	Kind        string
	Description string
}

// Validate checks the command's shape before any store access.
func (c *ReportProblemCmd) Validate() error {
	c.Kind = strings.TrimSpace(c.Kind)
	c.Description = strings.TrimSpace(c.Description)
	switch {
	case strings.TrimSpace(c.ActivityID) == "":
		return invalidArg("activity id is required")
	case c.Head < 1:
		return invalidArg("head number must be >= 1")
	case c.Kind == "":
		return invalidArg("problem kind is required")
	}
	return nil
}

// ResolveProblemCmd closes an open head problem. ResolvedBy is an optional
// operator id.
type ResolveProblemCmd struct {
	ProblemID  uint
	ResolvedBy string
}

// Validate checks the command's shape before any store access.
func (c *ResolveProblemCmd) Validate() error {
	c.ResolvedBy = strings.TrimSpace(c.ResolvedBy)
	if c.ProblemID == 0 {
		return invalidArg("problem id is required")
	}
	return nil
}

// ChangeHeadsCmd replaces the heads an active activity runs on.
type ChangeHeadsCmd struct {
	ActivityID string
	HeadsInUse []int
}

// Validate checks the command's shape before any store access.
func (c *ChangeHeadsCmd) Validate() error {
	switch {
	case strings.TrimSpace(c.ActivityID) == "":
		return invalidArg("activity id is required")
	case len(c.HeadsInUse) == 0:
		return invalidArg("at least one head is required")
	}
	return validateHeads(c.HeadsInUse)
}
