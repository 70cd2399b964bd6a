package entity

import "github.com/shopspring/decimal"

// Employee is the read-only slice of the employee master the calculator
// needs. Profile administration lives outside this engine.
type Employee struct {
	ID          string
	Entity      string
	FullName    string
	BankAccount string
	BaseSalary  decimal.Decimal
	Allowances  decimal.Decimal
	Penalties   decimal.Decimal
}
