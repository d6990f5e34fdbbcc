package domain

func floatPtr(v float64) *float64 { return &v }

// DefaultCatalog returns the built-in field dictionary, one entry per
// (domain, field) pair. The seed migration mirrors this data; tests and the
// deterministic suggester can run against it without a database.
func DefaultCatalog() []StandardFieldDefinition {
	return []StandardFieldDefinition{
		// inventory
		{Domain: "inventory", Name: "sku", DisplayName: "SKU", Type: FieldTypeString, Required: true,
			Aliases: []string{"item_code", "product_code", "part_number", "item_id", "product_id"}},
		{Domain: "inventory", Name: "product_name", DisplayName: "Product Name", Type: FieldTypeString, Required: true,
			Aliases: []string{"item_name", "name", "description", "product", "item"}},
		{Domain: "inventory", Name: "quantity", DisplayName: "Quantity", Type: FieldTypeInteger, Required: true,
			Aliases: []string{"qty", "stock", "on_hand", "stock_level", "count", "units"},
			Validation: ValidationRule{Min: floatPtr(0)}},
		{Domain: "inventory", Name: "unit_cost", DisplayName: "Unit Cost", Type: FieldTypeFloat,
			Aliases: []string{"cost", "cost_price", "unit_price", "price_per_unit"},
			Validation: ValidationRule{Min: floatPtr(0)}},
		{Domain: "inventory", Name: "reorder_point", DisplayName: "Reorder Point", Type: FieldTypeInteger,
			Aliases: []string{"reorder_level", "min_stock", "minimum_stock", "safety_stock"},
			Validation: ValidationRule{Min: floatPtr(0)}},
		{Domain: "inventory", Name: "warehouse", DisplayName: "Warehouse", Type: FieldTypeString,
			Aliases: []string{"location", "site", "storage_location", "bin"}},

		// orders
		{Domain: "orders", Name: "order_id", DisplayName: "Order ID", Type: FieldTypeString, Required: true,
			Aliases: []string{"order_number", "order_no", "po_number", "reference", "order_ref"}},
		{Domain: "orders", Name: "customer_name", DisplayName: "Customer Name", Type: FieldTypeString, Required: true,
			Aliases: []string{"customer", "client", "client_name", "buyer", "account_name"}},
		{Domain: "orders", Name: "order_date", DisplayName: "Order Date", Type: FieldTypeTimestamp, Required: true,
			Aliases: []string{"date", "created", "placed_at", "purchase_date", "order_placed"}},
		{Domain: "orders", Name: "total_amount", DisplayName: "Total Amount", Type: FieldTypeFloat, Required: true,
			Aliases: []string{"total", "amount", "order_total", "grand_total", "order_value"},
			Validation: ValidationRule{Min: floatPtr(0)}},
		{Domain: "orders", Name: "status", DisplayName: "Order Status", Type: FieldTypeString,
			Aliases: []string{"order_status", "state", "fulfillment_status"},
			Validation: ValidationRule{AllowedValues: []string{"pending", "confirmed", "shipped", "delivered", "cancelled", "returned"}}},
		{Domain: "orders", Name: "quantity", DisplayName: "Quantity", Type: FieldTypeInteger,
			Aliases: []string{"qty", "units", "items", "item_count"},
			Validation: ValidationRule{Min: floatPtr(0)}},

		// financial
		{Domain: "financial", Name: "transaction_id", DisplayName: "Transaction ID", Type: FieldTypeString, Required: true,
			Aliases: []string{"txn_id", "transaction_number", "reference", "entry_id"}},
		{Domain: "financial", Name: "transaction_date", DisplayName: "Transaction Date", Type: FieldTypeTimestamp, Required: true,
			Aliases: []string{"date", "posted_at", "value_date", "entry_date"}},
		{Domain: "financial", Name: "amount", DisplayName: "Amount", Type: FieldTypeFloat, Required: true,
			Aliases: []string{"value", "total", "debit", "credit", "net_amount"}},
		{Domain: "financial", Name: "category", DisplayName: "Category", Type: FieldTypeString,
			Aliases: []string{"account", "account_category", "type", "expense_category"}},
		{Domain: "financial", Name: "currency", DisplayName: "Currency", Type: FieldTypeString,
			Aliases: []string{"currency_code", "ccy"},
			Validation: ValidationRule{Pattern: `^[A-Z]{3}$`}},

		// customers
		{Domain: "customers", Name: "customer_id", DisplayName: "Customer ID", Type: FieldTypeString, Required: true,
			Aliases: []string{"client_id", "account_id", "customer_number", "account_number"}},
		{Domain: "customers", Name: "customer_name", DisplayName: "Customer Name", Type: FieldTypeString, Required: true,
			Aliases: []string{"name", "client", "client_name", "company", "account_name"}},
		{Domain: "customers", Name: "email", DisplayName: "Email", Type: FieldTypeString,
			Aliases: []string{"email_address", "contact_email", "e_mail"},
			Validation: ValidationRule{Pattern: `^[^@\s]+@[^@\s]+\.[^@\s]+$`}},
		{Domain: "customers", Name: "phone", DisplayName: "Phone", Type: FieldTypeString,
			Aliases: []string{"phone_number", "telephone", "contact_number", "mobile"}},

		// suppliers
		{Domain: "suppliers", Name: "supplier_id", DisplayName: "Supplier ID", Type: FieldTypeString, Required: true,
			Aliases: []string{"vendor_id", "supplier_number", "vendor_number"}},
		{Domain: "suppliers", Name: "supplier_name", DisplayName: "Supplier Name", Type: FieldTypeString, Required: true,
			Aliases: []string{"vendor", "vendor_name", "supplier", "company"}},
		{Domain: "suppliers", Name: "lead_time_days", DisplayName: "Lead Time (days)", Type: FieldTypeInteger,
			Aliases: []string{"lead_time", "delivery_days", "turnaround"},
			Validation: ValidationRule{Min: floatPtr(0), Max: floatPtr(365)}},
	}
}

// CatalogForDomain filters the catalog down to one business domain.
func CatalogForDomain(catalog []StandardFieldDefinition, domain string) []StandardFieldDefinition {
	filtered := make([]StandardFieldDefinition, 0, len(catalog))
	for _, field := range catalog {
		if field.Domain == domain {
			filtered = append(filtered, field)
		}
	}
	return filtered
}
