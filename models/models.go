package models

// All lists every model for auto-migration.
func All() []interface{} {
	return []interface{}{
		&User{},
		&MenuItem{},
		&PublishedMenu{},
		&CondimentList{},
		&Order{},
		&StatusHistory{},
		&Notification{},
		&Suggestion{},
		&BagRecord{},
	}
}
