package validate

// Operation names keying the fixed rule tables.
const (
	OpRegister = "register"
	OpLogin    = "login"
	OpProfile  = "profile"
	OpPost     = "post"
	OpComment  = "comment"
	OpID       = "id"
)

var ruleSets = map[string]RuleSet{
	OpRegister: {
		{Field: "username", Trim: true, Constraints: []Constraint{
			Required(requiredMessage("username")),
			MinLength(3, "Username must be at least 3 characters long"),
		}},
		{Field: "email", Constraints: []Constraint{
			Required(requiredMessage("email")),
			Email("Please enter a valid email"),
		}, Normalize: NormalizeEmail},
		{Field: "password", Constraints: []Constraint{
			Required(requiredMessage("password")),
			MinLength(6, "Password must be at least 6 characters long"),
		}},
	},
	OpLogin: {
		{Field: "email", Constraints: []Constraint{
			Required(requiredMessage("email")),
			Email("Please enter a valid email"),
		}, Normalize: NormalizeEmail},
		{Field: "password", Constraints: []Constraint{
			Required("Password is required"),
			String("Password is required"),
		}},
	},
	OpProfile: {
		{Field: "username", Trim: true, Constraints: []Constraint{
			Optional(),
			MinLength(3, "Username must be at least 3 characters long"),
		}},
		{Field: "email", Constraints: []Constraint{
			Optional(),
			Email("Please enter a valid email"),
		}, Normalize: NormalizeEmail},
	},
	OpPost: {
		{Field: "title", Trim: true, Constraints: []Constraint{
			Required(requiredMessage("title")),
			Length(5, 100, "Title must be between 5 and 100 characters"),
		}},
		{Field: "content", Trim: true, Constraints: []Constraint{
			Required(requiredMessage("content")),
			MinLength(10, "Content must be at least 10 characters long"),
		}},
		{Field: "tags", Constraints: []Constraint{
			Optional(),
			Sequence("Tags must be an array of strings"),
		}, Normalize: NormalizeStrings},
	},
	OpComment: {
		{Field: "text", Trim: true, Constraints: []Constraint{
			Required(requiredMessage("text")),
			MinLength(3, "Comment must be at least 3 characters long"),
		}},
	},
	OpID: {
		{Field: "id", Constraints: []Constraint{
			Required("Invalid ID format"),
			UUID("Invalid ID format"),
		}, Normalize: NormalizeUUID},
	},
}

// For returns the rule set registered for op. The tables are fixed at build
// time, so an unknown name is a programming error.
func For(op string) RuleSet {
	rs, ok := ruleSets[op]
	if !ok {
		panic("validate: no rule set for operation " + op)
	}
	return rs
}
