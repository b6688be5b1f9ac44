package models

// All returns every model managed by AutoMigrate, parents first
func All() []interface{} {
	return []interface{}{
		&User{},
		&Client{},
		&Lawyer{},
		&Case{},
		&CaseEvent{},
		&CaseDocument{},
		&CaseMessage{},
		&Notification{},
		&EmailTemplate{},
		&EmailLog{},
	}
}
