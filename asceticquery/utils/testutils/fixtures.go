package testutils

import (
	"time"

	"github.com/icrowley/fake"
	"syreclabs.com/go/faker"
)

var Cities = []string{"Berlin", "Lisbon", "Oslo"}

// Dataset is a generated set of records matching EmployeeCatalog.
type Dataset struct {
	Companies   []map[string]any
	Departments []map[string]any
	Employees   []map[string]any
	Projects    []map[string]any
}

// NewDataset generates n employees spread over four departments of two
// companies. Every fifth employee has no department, every other
// department has no head, and employees own zero to two projects.
func NewDataset(n int) Dataset {
	d := Dataset{}
	for i := 1; i <= 2; i++ {
		d.Companies = append(d.Companies, map[string]any{
			"id":   int64(i),
			"name": fake.Company(),
		})
	}
	for i := 1; i <= 4; i++ {
		var head any
		if i%2 == 0 {
			head = faker.Name().Name()
		}
		d.Departments = append(d.Departments, map[string]any{
			"id":         int64(i),
			"name":       faker.Commerce().Department(),
			"head":       head,
			"company_id": int64((i-1)%2 + 1),
		})
	}
	from := time.Date(2015, 1, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	projectID := int64(0)
	for i := 1; i <= n; i++ {
		var department any = int64((i-1)%4 + 1)
		if i%5 == 0 {
			department = nil
		}
		var mentor any
		if i > 1 && i%3 == 0 {
			mentor = int64(i - 1)
		}
		var nickname any
		if i%2 == 1 {
			nickname = fake.FirstName()
		}
		d.Employees = append(d.Employees, map[string]any{
			"id":            int64(i),
			"name":          faker.Name().FirstName(),
			"nickname":      nickname,
			"salary":        float64(1000 + faker.Number().NumberInt(4)),
			"city":          Cities[i%len(Cities)],
			"hired":         faker.Time().Between(from, to),
			"active":        i%4 != 0,
			"department_id": department,
			"mentor_id":     mentor,
			"address": map[string]any{
				"city": faker.Address().City(),
				"zip":  fake.Zip(),
			},
		})
		for j := 0; j < i%3; j++ {
			projectID++
			d.Projects = append(d.Projects, map[string]any{
				"id":          projectID,
				"title":       fake.ProductName(),
				"budget":      float64(faker.Number().NumberInt(5)),
				"employee_id": int64(i),
			})
		}
	}
	return d
}
