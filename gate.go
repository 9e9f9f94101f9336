package techmate

// Capability names what a protected view requires of the current session.
type Capability int

const (
	// CapabilityAuthenticated requires any live session.
	CapabilityAuthenticated Capability = iota
	// CapabilityInstructor requires an approved instructor or an admin.
	CapabilityInstructor
)

// Outcome is the gate's decision for a protected view. UI layers render it;
// they never re-derive role logic themselves.
type Outcome int

const (
	// OutcomeLoading means the cached session is still being validated;
	// render a loading indicator, never a redirect.
	OutcomeLoading Outcome = iota
	// OutcomeRender means the protected content may render.
	OutcomeRender
	// OutcomePending means the viewer is an instructor awaiting admin
	// approval; render the informational placeholder.
	OutcomePending
	// OutcomeRedirectLogin means the viewer must authenticate first.
	OutcomeRedirectLogin
	// OutcomeRedirectHome means the viewer is authenticated but can never
	// hold the capability (students on instructor views).
	OutcomeRedirectHome
)

// String returns the outcome name for logs and tests.
func (o Outcome) String() string {
	switch o {
	case OutcomeLoading:
		return "loading"
	case OutcomeRender:
		return "render"
	case OutcomePending:
		return "pending"
	case OutcomeRedirectLogin:
		return "redirect-login"
	case OutcomeRedirectHome:
		return "redirect-home"
	default:
		return "unknown"
	}
}

// GateInput is the session snapshot the gate decides on.
type GateInput struct {
	Loading            bool
	Authenticated      bool
	Role               Role
	InstructorApproved bool
}

// Decide is the single place role/approval branching lives. It is pure:
// same input, same outcome, no side effects.
func Decide(in GateInput, capability Capability) Outcome {
	if in.Loading {
		return OutcomeLoading
	}
	if !in.Authenticated {
		return OutcomeRedirectLogin
	}

	switch capability {
	case CapabilityAuthenticated:
		return OutcomeRender
	case CapabilityInstructor:
		switch in.Role {
		case RoleAdmin:
			return OutcomeRender
		case RoleInstructor:
			if in.InstructorApproved {
				return OutcomeRender
			}
			return OutcomePending
		default:
			return OutcomeRedirectHome
		}
	default:
		return OutcomeRedirectHome
	}
}
