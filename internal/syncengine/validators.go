package syncengine

import "shopsync/internal/models"

// Built-in required-field validators for the standard entity types. Callers
// with richer schemas register their own Validator instead.

func requireFields(record *models.Record, fields ...string) error {
	m, err := record.FieldMap()
	if err != nil {
		return WrapValidation("malformed fields payload", err)
	}
	for _, f := range fields {
		v, ok := m[f]
		if !ok || v == nil || v == "" {
			return Validationf("%s: required field %q is missing", record.EntityType, f)
		}
	}
	return nil
}

func ValidateProduct(record *models.Record) error {
	return requireFields(record, "name", "selling_price")
}

func ValidateCustomer(record *models.Record) error {
	return requireFields(record, "name")
}

func ValidateInvoice(record *models.Record) error {
	if err := requireFields(record, "customer_name"); err != nil {
		return err
	}
	m, err := record.FieldMap()
	if err != nil {
		return WrapValidation("malformed fields payload", err)
	}
	items, ok := m["items"].([]interface{})
	if !ok || len(items) == 0 {
		return Validationf("invoice: at least one line item is required")
	}
	return nil
}

func ValidateTransaction(record *models.Record) error {
	return requireFields(record, "amount", "type")
}

// DefaultValidators maps the standard entity types to their validators.
func DefaultValidators() map[string]Validator {
	return map[string]Validator{
		models.EntityProduct:     ValidateProduct,
		models.EntityCustomer:    ValidateCustomer,
		models.EntityInvoice:     ValidateInvoice,
		models.EntityTransaction: ValidateTransaction,
	}
}
