package core

// Categories is the suggested set shown when entering an expense. Any other
// string is accepted as a custom category.
var Categories = []string{
	"Food",
	"Transportation",
	"Entertainment",
	"Shopping",
	"Bills",
	"Healthcare",
	"Education",
	"Travel",
	"Groceries",
	"Other",
}

// IsSuggestedCategory reports whether name is one of Categories.
func IsSuggestedCategory(name string) bool {
	for _, c := range Categories {
		if c == name {
			return true
		}
	}
	return false
}
