package domain

// All returns every persisted model, in dependency order, for AutoMigrate.
func All() []interface{} {
	return []interface{}{
		&Company{}, &User{}, &CompanyInvestor{}, &WiseRecipient{},
		&ShareClass{}, &ShareHolding{}, &ConvertibleSecurity{}, &EquityGrant{},
		&LiquidationScenario{}, &LiquidationPayout{},
		&Invoice{}, &ConsolidatedInvoice{},
		&DividendRound{}, &Dividend{}, &EquityBuyback{},
		&Payment{}, &PaymentItem{},
	}
}
