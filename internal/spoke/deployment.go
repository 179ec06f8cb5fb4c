package spoke

import (
	"encoding/json"
	"fmt"
	"slices"
	"time"
)

// Status is the lifecycle state of a Deployment.
type Status string

// Deployment statuses.
const (
	StatusPending        Status = "pending"
	StatusInProgress     Status = "in_progress"
	StatusCompleted      Status = "completed"
	StatusFailed         Status = "failed"
	StatusRollingBack    Status = "rolling_back"
	StatusRolledBack     Status = "rolled_back"
	StatusRollbackFailed Status = "rollback_failed"
)

// AllStatuses lists every status in lifecycle order.
var AllStatuses = []Status{
	StatusPending, StatusInProgress, StatusCompleted, StatusFailed,
	StatusRollingBack, StatusRolledBack, StatusRollbackFailed,
}

// transitions is the complete lifecycle graph.
var transitions = map[Status][]Status{
	StatusPending:        {StatusInProgress},
	StatusInProgress:     {StatusCompleted, StatusFailed},
	StatusCompleted:      {StatusRollingBack},
	StatusFailed:         {StatusRollingBack},
	StatusRollbackFailed: {StatusRollingBack},
	StatusRollingBack:    {StatusRolledBack, StatusRollbackFailed},
}

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	return slices.Contains(AllStatuses, s)
}

// Active reports whether a workflow or teardown currently owns the record.
func (s Status) Active() bool {
	return s == StatusPending || s == StatusInProgress || s == StatusRollingBack
}

// CanTransition reports whether from -> to is an edge of the lifecycle graph.
func CanTransition(from, to Status) bool {
	return slices.Contains(transitions[from], to)
}

// StepName identifies one unit of the forward workflow.
type StepName string

// Forward workflow steps.
const (
	StepValidate        StepName = "validate"
	StepCreateNetwork   StepName = "create-network"
	StepCreateSubnets   StepName = "create-subnets"
	StepCreateNIC       StepName = "create-nic"
	StepCreateVM        StepName = "create-vm"
	StepWaitVMReady     StepName = "wait-vm-ready"
	StepReadVMPrivateIP StepName = "read-vm-private-ip"
	StepCreatePeering   StepName = "create-peering"
	StepVerifyPeering   StepName = "verify-peering"
	StepUpdateGateway   StepName = "update-gateway"
	StepPersist         StepName = "persist"
)

// StepOrder is the fixed execution order of the forward workflow.
var StepOrder = []StepName{
	StepValidate,
	StepCreateNetwork,
	StepCreateSubnets,
	StepCreateNIC,
	StepCreateVM,
	StepWaitVMReady,
	StepReadVMPrivateIP,
	StepCreatePeering,
	StepVerifyPeering,
	StepUpdateGateway,
	StepPersist,
}

// StepStatus is the state of a single step.
type StepStatus string

// Step statuses.
const (
	StepStatusPending    StepStatus = "pending"
	StepStatusInProgress StepStatus = "in_progress"
	StepStatusCompleted  StepStatus = "completed"
	StepStatusFailed     StepStatus = "failed"
)

// Step records the progress of one workflow step.
type Step struct {
	Name         StepName   `json:"name"`
	Status       StepStatus `json:"status"`
	StartedAt    *time.Time `json:"started_at,omitempty"`
	CompletedAt  *time.Time `json:"completed_at,omitempty"`
	ErrorMessage string     `json:"error_message,omitempty"`
}

// Resources are the provider identifiers produced by the workflow.
type Resources struct {
	VNetID          string            `json:"vnet_id,omitempty"`
	VNetName        string            `json:"vnet_name,omitempty"`
	SubnetIDs       map[string]string `json:"subnet_ids,omitempty"`
	NICID           string            `json:"nic_id,omitempty"`
	NICName         string            `json:"nic_name,omitempty"`
	VMID            string            `json:"vm_id,omitempty"`
	VMName          string            `json:"vm_name,omitempty"`
	VMPrivateIP     string            `json:"vm_private_ip,omitempty"`
	OSDiskName      string            `json:"os_disk_name,omitempty"`
	PeeringIDs      []string          `json:"peering_ids,omitempty"`
	BackendPoolName string            `json:"backend_pool_name,omitempty"`
	RoutingRuleName string            `json:"routing_rule_name,omitempty"`
}

// Deployment is the persisted record of one spoke.
type Deployment struct {
	SpokeID     int           `json:"spoke_id"`
	ClientName  string        `json:"client_name"`
	OperationID string        `json:"operation_id"`
	Status      Status        `json:"status"`
	Steps       []Step        `json:"steps"`
	Config      Configuration `json:"config"`

	Resources

	ErrorMessage     string   `json:"error_message,omitempty"`
	FailedStep       StepName `json:"failed_step,omitempty"`
	RollbackErrors   []string `json:"rollback_errors,omitempty"`
	RollbackAttempts int      `json:"rollback_attempts"`

	CreatedAt          time.Time  `json:"created_at"`
	UpdatedAt          time.Time  `json:"updated_at"`
	CompletedAt        *time.Time `json:"completed_at,omitempty"`
	FailedAt           *time.Time `json:"failed_at,omitempty"`
	RollbackStartedAt  *time.Time `json:"rollback_started_at,omitempty"`
	RollbackFinishedAt *time.Time `json:"rollback_finished_at,omitempty"`
}

// NewDeployment returns a pending record with every step pending.
func NewDeployment(cfg Configuration, operationID string, now time.Time) *Deployment {
	steps := make([]Step, len(StepOrder))
	for i, name := range StepOrder {
		steps[i] = Step{Name: name, Status: StepStatusPending}
	}
	return &Deployment{
		SpokeID:     cfg.SpokeID,
		ClientName:  cfg.ClientName,
		OperationID: operationID,
		Status:      StatusPending,
		Steps:       steps,
		Config:      cfg,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

// Transition moves the record to status to and stamps the matching timestamp.
func (d *Deployment) Transition(to Status, now time.Time) error {
	if !CanTransition(d.Status, to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, d.Status, to)
	}
	d.Status = to
	d.UpdatedAt = now

	switch to {
	case StatusCompleted:
		d.CompletedAt = &now
	case StatusFailed:
		d.FailedAt = &now
	case StatusRollingBack:
		d.RollbackStartedAt = &now
		d.RollbackFinishedAt = nil
	case StatusRolledBack, StatusRollbackFailed:
		d.RollbackFinishedAt = &now
	}
	return nil
}

// Step returns the entry for name, or nil.
func (d *Deployment) Step(name StepName) *Step {
	for i := range d.Steps {
		if d.Steps[i].Name == name {
			return &d.Steps[i]
		}
	}
	return nil
}

// StepCompleted reports whether the named step finished successfully.
func (d *Deployment) StepCompleted(name StepName) bool {
	s := d.Step(name)
	return s != nil && s.Status == StepStatusCompleted
}

func (d *Deployment) mutableStep(name StepName) (*Step, error) {
	if d.Status != StatusPending && d.Status != StatusInProgress {
		return nil, fmt.Errorf("%w: steps are frozen in status %s", ErrInvalidTransition, d.Status)
	}
	s := d.Step(name)
	if s == nil {
		return nil, fmt.Errorf("unknown step %q", name)
	}
	return s, nil
}

// StartStep marks name in progress. The first started step moves the record
// from pending to in_progress.
func (d *Deployment) StartStep(name StepName, now time.Time) error {
	s, err := d.mutableStep(name)
	if err != nil {
		return err
	}
	if d.Status == StatusPending {
		if err := d.Transition(StatusInProgress, now); err != nil {
			return err
		}
	}
	s.Status = StepStatusInProgress
	s.StartedAt = &now
	s.CompletedAt = nil
	s.ErrorMessage = ""
	d.UpdatedAt = now
	return nil
}

// CompleteStep marks name completed.
func (d *Deployment) CompleteStep(name StepName, now time.Time) error {
	s, err := d.mutableStep(name)
	if err != nil {
		return err
	}
	s.Status = StepStatusCompleted
	s.CompletedAt = &now
	d.UpdatedAt = now
	return nil
}

// FailStep marks name failed with cause's text and fails the deployment.
func (d *Deployment) FailStep(name StepName, cause error, now time.Time) error {
	s, err := d.mutableStep(name)
	if err != nil {
		return err
	}
	msg := ""
	if cause != nil {
		msg = cause.Error()
	}
	s.Status = StepStatusFailed
	s.CompletedAt = &now
	s.ErrorMessage = msg

	d.FailedStep = name
	d.ErrorMessage = msg
	if d.Status == StatusPending {
		if err := d.Transition(StatusInProgress, now); err != nil {
			return err
		}
	}
	return d.Transition(StatusFailed, now)
}

// Abandon fails a forward workflow that can no longer record its own outcome.
// The failure lands on the step in progress, else the first step not yet
// completed, else the last step.
func (d *Deployment) Abandon(cause error, now time.Time) error {
	if len(d.Steps) == 0 {
		return fmt.Errorf("%w: deployment has no steps", ErrInvalidTransition)
	}
	i := slices.IndexFunc(d.Steps, func(s Step) bool { return s.Status == StepStatusInProgress })
	if i < 0 {
		i = slices.IndexFunc(d.Steps, func(s Step) bool { return s.Status != StepStatusCompleted })
	}
	if i < 0 {
		i = len(d.Steps) - 1
	}
	return d.FailStep(d.Steps[i].Name, cause, now)
}

// AppendRollbackError records a teardown failure. Earlier entries are never
// rewritten.
func (d *Deployment) AppendRollbackError(msg string, now time.Time) {
	d.RollbackErrors = append(d.RollbackErrors, msg)
	d.UpdatedAt = now
}

// Progress is the share of completed steps, 0-100.
func (d *Deployment) Progress() float64 {
	if len(d.Steps) == 0 {
		return 0
	}
	done := 0
	for _, s := range d.Steps {
		if s.Status == StepStatusCompleted {
			done++
		}
	}
	return float64(done) / float64(len(d.Steps)) * 100
}

// Clone returns a deep copy.
func (d *Deployment) Clone() *Deployment {
	if d == nil {
		return nil
	}
	out := *d
	out.Steps = make([]Step, len(d.Steps))
	for i, s := range d.Steps {
		s.StartedAt = cloneTime(s.StartedAt)
		s.CompletedAt = cloneTime(s.CompletedAt)
		out.Steps[i] = s
	}
	if d.SubnetIDs != nil {
		out.SubnetIDs = make(map[string]string, len(d.SubnetIDs))
		for k, v := range d.SubnetIDs {
			out.SubnetIDs[k] = v
		}
	}
	out.PeeringIDs = slices.Clone(d.PeeringIDs)
	out.RollbackErrors = slices.Clone(d.RollbackErrors)
	out.CompletedAt = cloneTime(d.CompletedAt)
	out.FailedAt = cloneTime(d.FailedAt)
	out.RollbackStartedAt = cloneTime(d.RollbackStartedAt)
	out.RollbackFinishedAt = cloneTime(d.RollbackFinishedAt)
	return &out
}

// MarshalJSON adds the derived progress field.
func (d *Deployment) MarshalJSON() ([]byte, error) {
	type plain Deployment
	return json.Marshal(struct {
		*plain
		Progress float64 `json:"progress"`
	}{plain: (*plain)(d), Progress: d.Progress()})
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
