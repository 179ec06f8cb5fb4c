package labels

import "strconv"

// Standard tag keys for spoke resources.
const (
	// KeySpokeID identifies which spoke a resource belongs to
	KeySpokeID = "spoke_id"

	// KeyClient identifies the tenant the spoke was created for
	KeyClient = "client_name"

	// KeyManagedBy identifies the management system
	KeyManagedBy = "managed_by"

	// KeyOperation records the create attempt that produced the resource
	KeyOperation = "operation_id"
)

// ManagedByHubSpoke is the value of KeyManagedBy on every resource we create.
const ManagedByHubSpoke = "hubspoke"

// LabelBuilder provides a fluent interface for building resource tags.
type LabelBuilder struct {
	labels map[string]string
}

// NewLabelBuilder creates a new label builder with the spoke id pre-set.
func NewLabelBuilder(spokeID int) *LabelBuilder {
	return &LabelBuilder{
		labels: map[string]string{
			KeySpokeID:   strconv.Itoa(spokeID),
			KeyManagedBy: ManagedByHubSpoke,
		},
	}
}

// WithClient adds the client name tag.
func (lb *LabelBuilder) WithClient(client string) *LabelBuilder {
	lb.labels[KeyClient] = client
	return lb
}

// WithOperationIfSet adds the operation id tag only if id is non-empty.
func (lb *LabelBuilder) WithOperationIfSet(id string) *LabelBuilder {
	if id != "" {
		lb.labels[KeyOperation] = id
	}
	return lb
}

// Merge adds all labels from the provided map.
func (lb *LabelBuilder) Merge(extra map[string]string) *LabelBuilder {
	for k, v := range extra {
		lb.labels[k] = v
	}
	return lb
}

// Build returns a copy of the labels map.
func (lb *LabelBuilder) Build() map[string]string {
	result := make(map[string]string, len(lb.labels))
	for k, v := range lb.labels {
		result[k] = v
	}
	return result
}

// Pointers converts tags to the map[string]*string form the Azure SDK expects.
func Pointers(tags map[string]string) map[string]*string {
	out := make(map[string]*string, len(tags))
	for k, v := range tags {
		out[k] = &v
	}
	return out
}
