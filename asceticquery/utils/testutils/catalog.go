package testutils

import (
	"github.com/krew-solutions/ascetic-query-go/asceticquery/query/schema"
)

// EmployeeCatalog is the catalog shared by the package tests:
//
//	employee -department-> department -company-> company
//	employee -projects->> project (project.employee_id)
//	employee -mentor-> employee
//	employee.address is embedded
func EmployeeCatalog() *schema.Catalog {
	c, err := schema.NewCatalogBuilder().
		RegisterEntity(schema.NewEntity("employee").
			WithCollection("employees").
			WithField("id", schema.TypeInt).
			WithField("name", schema.TypeString).
			WithField("nickname", schema.TypeString).
			WithField("salary", schema.TypeFloat).
			WithField("city", schema.TypeString).
			WithField("hired", schema.TypeTime).
			WithField("active", schema.TypeBool).
			WithField("department_id", schema.TypeInt).
			WithField("mentor_id", schema.TypeInt).
			WithEmbedded("address", "address")).
		RegisterEntity(schema.NewEntity("department").
			WithCollection("departments").
			WithField("id", schema.TypeInt).
			WithField("name", schema.TypeString).
			WithField("head", schema.TypeString).
			WithField("company_id", schema.TypeInt)).
		RegisterEntity(schema.NewEntity("company").
			WithCollection("companies").
			WithField("id", schema.TypeInt).
			WithField("name", schema.TypeString)).
		RegisterEntity(schema.NewEntity("project").
			WithCollection("projects").
			WithField("id", schema.TypeInt).
			WithField("title", schema.TypeString).
			WithField("budget", schema.TypeFloat).
			WithField("employee_id", schema.TypeInt)).
		RegisterEntity(schema.NewEntity("address").
			WithField("city", schema.TypeString).
			WithField("zip", schema.TypeString)).
		RegisterReference(schema.ReferenceEdge{
			FromType: "employee", FieldName: "department", ToType: "department",
			Multiplicity: schema.One, LocalField: "department_id",
		}).
		RegisterReference(schema.ReferenceEdge{
			FromType: "employee", FieldName: "mentor", ToType: "employee",
			Multiplicity: schema.One, LocalField: "mentor_id",
		}).
		RegisterReference(schema.ReferenceEdge{
			FromType: "department", FieldName: "company", ToType: "company",
			Multiplicity: schema.One, LocalField: "company_id",
		}).
		RegisterMany("employee", "projects", "project", "employee_id").
		Build()
	if err != nil {
		panic(err)
	}
	return c
}
