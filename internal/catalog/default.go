package catalog

// Default returns the built-in catalog used when no catalog file is
// configured. It mirrors the menu configuration shipped with the
// back-office frontend; deployments normally override it with an export of
// the live menu table.
func Default() *Catalog {
	c, err := New(defaultDocument())
	if err != nil {
		// The built-in document is static; a failure here is a programming error.
		panic(err)
	}
	return c
}

func defaultDocument() Document {
	return Document{
		Menu: []Group{
			{Name: "dashboard", Keys: []Key{
				{Key: "dashboard", Label: "Dashboards"},
				{Key: "dashboard.transport", Label: "Transport dashboard"},
				{Key: "dashboard.financial", Label: "Financial dashboard"},
				{Key: "dashboard.project", Label: "Project dashboard"},
				{Key: "dashboard.quantity", Label: "Quantity overview"},
			}},
			{Name: "maintenance", Keys: []Key{
				{Key: "maintenance", Label: "Master data"},
				{Key: "maintenance.projects", Label: "Projects"},
				{Key: "maintenance.drivers", Label: "Drivers"},
				{Key: "maintenance.partners", Label: "Partners"},
				{Key: "maintenance.locations", Label: "Locations"},
			}},
			{Name: "business", Keys: []Key{
				{Key: "business", Label: "Business entry"},
				{Key: "business.entry", Label: "Waybill entry"},
				{Key: "business.import", Label: "Data import"},
				{Key: "business.maintenance", Label: "Waybill maintenance"},
				{Key: "business.scale", Label: "Scale records"},
			}},
			{Name: "contracts", Keys: []Key{
				{Key: "contracts", Label: "Contracts"},
				{Key: "contracts.list", Label: "Contract list"},
			}},
			{Name: "finance", Keys: []Key{
				{Key: "finance", Label: "Finance"},
				{Key: "finance.reconciliation", Label: "Reconciliation"},
				{Key: "finance.payment_invoice", Label: "Invoice requests"},
				{Key: "finance.payment_requests", Label: "Payment requests"},
			}},
			{Name: "settings", Keys: []Key{
				{Key: "settings", Label: "Settings"},
				{Key: "settings.users", Label: "User management"},
				{Key: "settings.permissions", Label: "Permission configuration"},
				{Key: "settings.audit_logs", Label: "Audit logs"},
				{Key: "settings.partner_hierarchy", Label: "Partner hierarchy"},
			}},
		},
		Function: []Group{
			{Name: "data", Keys: []Key{
				{Key: "data.create", Label: "Create records"},
				{Key: "data.edit", Label: "Edit records"},
				{Key: "data.delete", Label: "Delete records"},
				{Key: "data.export", Label: "Export data"},
				{Key: "data.import", Label: "Import data"},
			}},
			{Name: "scale_records", Keys: []Key{
				{Key: "scale_records.create", Label: "Create scale records"},
				{Key: "scale_records.edit", Label: "Edit scale records"},
				{Key: "scale_records.view", Label: "View scale records"},
				{Key: "scale_records.delete", Label: "Delete scale records"},
			}},
			{Name: "finance", Keys: []Key{
				{Key: "finance.view_cost", Label: "View costs"},
				{Key: "finance.approve_payment", Label: "Approve payments"},
				{Key: "finance.generate_invoice", Label: "Generate invoices"},
				{Key: "finance.reconcile", Label: "Reconcile"},
			}},
		},
		Project: []Group{
			{Name: "access", Keys: []Key{
				{Key: "project_access", Label: "Project access"},
				{Key: "project.view_all", Label: "View all projects"},
				{Key: "project.view_assigned", Label: "View assigned projects"},
				{Key: "project.manage", Label: "Manage projects"},
			}},
		},
		Data: []Group{
			{Name: "scope", Keys: []Key{
				{Key: "data.all", Label: "All data"},
				{Key: "data.own", Label: "Own data"},
				{Key: "data.team", Label: "Team data"},
				{Key: "data.partner_subtree", Label: "Partner subtree data"},
			}},
		},
	}
}
