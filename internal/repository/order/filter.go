package order

// Filter narrows Count and DeleteWhere. Nil fields match everything.
type Filter struct {
	Test     *bool
	Migrated *bool
	UserID   string
}

// OnlyTest matches records explicitly flagged as synthetic test data.
func OnlyTest() *Filter {
	flag := true
	return &Filter{Test: &flag}
}

type clause struct {
	query string
	args  []any
}

func (f *Filter) clauses() []clause {
	if f == nil {
		return nil
	}
	var out []clause
	if f.Test != nil {
		out = append(out, clause{"o.test = ?", []any{*f.Test}})
	}
	if f.Migrated != nil {
		out = append(out, clause{"o.migrated = ?", []any{*f.Migrated}})
	}
	if f.UserID != "" {
		out = append(out, clause{"o.user_id = ?", []any{f.UserID}})
	}
	return out
}
