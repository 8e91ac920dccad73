package layers

// Mode selects how a forward pass behaves.
// Training caches the activations the backward pass needs; Evaluation
// caches nothing and leaves the network ready for inference only
type Mode int

const (
	Training Mode = iota
	Evaluation
)

func (m Mode) String() string {
	switch m {
	case Training:
		return "Training"
	case Evaluation:
		return "Evaluation"
	default:
		return "Unknown"
	}
}
