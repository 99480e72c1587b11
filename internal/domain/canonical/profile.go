package canonical

import (
	"fmt"
	"os"

	"github.com/pelletier/go-toml/v2"

	"medledger/internal/domain/ledger"
)

// Profile fixes the field orders used to canonicalize each record type.
// The defaults match the fingerprints already on the ledger; overriding them
// changes every hash this process computes, so a profile file is only ever
// swapped together with a re-fingerprinting run.
type Profile struct {
	Fields       map[string][]string `toml:"fields"`
	Medication   []string            `toml:"medication"`
	InvoiceItem  []string            `toml:"invoice_item"`
	MedSortKeys  []string            `toml:"medication_sort"`
	ItemSortKeys []string            `toml:"invoice_item_sort"`
}

// DefaultProfile returns the built-in field orders.
func DefaultProfile() Profile {
	return Profile{
		Fields: map[string][]string{
			ledger.RecordTypePatient.String(): {
				"mrn", "first_name", "last_name", "date_of_birth", "gender",
				"phone", "email", "national_id", "blood_group", "address_line1",
				"city", "state", "postal_code", "country",
			},
			ledger.RecordTypeVisit.String(): {
				"patient_id", "doctor_id", "department_id", "visit_type",
				"admission_date", "chief_complaint", "room_number", "bed_number",
				"ward", "status",
			},
			ledger.RecordTypePrescription.String(): {
				"patient_id", "doctor_id", "visit_id", "notes", "prescription_date",
			},
			ledger.RecordTypeBilling.String(): {
				"patient_id", "visit_id", "invoice_number", "due_date", "notes", "invoice_date",
			},
			ledger.RecordTypeAppointment.String(): {
				"patient_id", "doctor_id", "department_id", "appointment_date",
				"appointment_time", "visit_type", "reason", "status",
			},
			ledger.RecordTypeReport.String(): {
				"patient_id", "visit_id", "report_type", "title", "description",
				"ordering_doctor_id", "department_id", "report_date", "result_summary",
			},
		},
		Medication:   []string{"medicine_name", "dosage", "frequency", "duration", "instructions", "quantity"},
		InvoiceItem:  []string{"category", "description", "quantity", "unit_price"},
		MedSortKeys:  []string{"medicine_name"},
		ItemSortKeys: []string{"category", "description"},
	}
}

// LoadProfile reads field orders from a TOML file. Sections missing from the
// file keep their defaults.
func LoadProfile(path string) (Profile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Profile{}, fmt.Errorf("read hash profile: %w", err)
	}

	profile := DefaultProfile()
	var loaded Profile
	if err := toml.Unmarshal(data, &loaded); err != nil {
		return Profile{}, fmt.Errorf("parse hash profile: %w", err)
	}

	for recordType, order := range loaded.Fields {
		profile.Fields[recordType] = order
	}
	if len(loaded.Medication) > 0 {
		profile.Medication = loaded.Medication
	}
	if len(loaded.InvoiceItem) > 0 {
		profile.InvoiceItem = loaded.InvoiceItem
	}
	if len(loaded.MedSortKeys) > 0 {
		profile.MedSortKeys = loaded.MedSortKeys
	}
	if len(loaded.ItemSortKeys) > 0 {
		profile.ItemSortKeys = loaded.ItemSortKeys
	}
	return profile, nil
}

func (p Profile) order(recordType ledger.RecordType) ([]string, error) {
	order, ok := p.Fields[recordType.String()]
	if !ok || len(order) == 0 {
		return nil, fmt.Errorf("no canonical field order for record type %s", recordType)
	}
	return order, nil
}

// RecordHash canonicalizes and hashes a flat record of the given type.
// Prescriptions and invoices carry sub-entities; use PrescriptionHash and
// InvoiceHash for those.
func (p Profile) RecordHash(recordType ledger.RecordType, fields map[string]any) (string, error) {
	order, err := p.order(recordType)
	if err != nil {
		return "", err
	}
	return HashHex(String(fields, order)), nil
}

// PrescriptionHash hashes a prescription together with its medication list.
// Medications are sorted by name so hashing is order-insensitive.
func (p Profile) PrescriptionHash(fields map[string]any, medications []map[string]any) (string, error) {
	order, err := p.order(ledger.RecordTypePrescription)
	if err != nil {
		return "", err
	}
	base := String(fields, order)
	meds := itemList(medications, p.Medication, p.MedSortKeys...)
	return HashHex(base + "|medications=[" + meds + "]"), nil
}

// InvoiceHash hashes an invoice together with its line items, sorted by
// category then description.
func (p Profile) InvoiceHash(fields map[string]any, items []map[string]any) (string, error) {
	order, err := p.order(ledger.RecordTypeBilling)
	if err != nil {
		return "", err
	}
	base := String(fields, order)
	lines := itemList(items, p.InvoiceItem, p.ItemSortKeys...)
	return HashHex(base + "|items=[" + lines + "]"), nil
}

// ReportFormHash hashes the form fields of a report, excluding any attached
// file. File bytes hash separately with FileHashHex.
func (p Profile) ReportFormHash(fields map[string]any) (string, error) {
	return p.RecordHash(ledger.RecordTypeReport, fields)
}
