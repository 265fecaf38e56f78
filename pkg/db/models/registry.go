package models

// All lists every persisted model, in dependency order, for AutoMigrate.
func All() []any {
	return []any{
		&Plan{},
		&Subscriber{},
		&SubscriptionHistory{},
		&Account{},
		&Transaction{},
		&Campaign{},
		&PaymentMethod{},
		&Payment{},
		&PaymentProof{},
		&PaymentEvent{},
		&GatewayEvent{},
		&OutboxEvent{},
		&OutboxDLQ{},
	}
}
