package entity

import (
	"fmt"
	"slices"

	"github.com/gin-gonic/gin"
	"github.com/simp-lee/attendance/internal/domain"
	"github.com/simp-lee/attendance/internal/repository"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

// Access selects which endpoints of a resource an area exposes.
type Access int

const (
	ReadOnly Access = iota
	ReadWrite
)

// Resource is a routable entity endpoint set.
type Resource interface {
	Name() string
	Register(rg *gin.RouterGroup, access Access)
}

// Name returns the route segment of the resource.
func (h *Handler[T]) Name() string {
	return h.svc.Name()
}

// Register mounts the resource under rg. Read-only access exposes list and
// get; read-write adds create, update, status, and delete.
func (h *Handler[T]) Register(rg *gin.RouterGroup, access Access) {
	g := rg.Group("/" + h.Name())
	g.GET("", h.List)
	g.GET("/:"+globalIDParam, h.Get)
	if access != ReadWrite {
		return
	}
	g.POST("", h.Create)
	g.PATCH("/:"+globalIDParam, h.Update)
	if h.svc.HasLifecycle() {
		g.POST("/:"+globalIDParam+"/status", h.Status)
	}
	g.POST("/:"+globalIDParam+"/delete", h.Delete)
}

// CatalogOptions customises catalog construction.
type CatalogOptions struct {
	// PasswordCost is the bcrypt cost for account passwords. Zero means bcrypt.DefaultCost.
	PasswordCost int
	// SettingHooks observe every settings write.
	SettingHooks []ChangeFunc[domain.Setting]
	// SettingPrepare runs before every settings write.
	SettingPrepare []PrepareFunc
}

// Catalog holds the service of every entity type and their routable handlers.
type Catalog struct {
	Admins             *Service[domain.Admin]
	Instructors        *Service[domain.Instructor]
	Students           *Service[domain.Student]
	Generations        *Service[domain.Generation]
	Departments        *Service[domain.Department]
	Specializations    *Service[domain.Specialization]
	Terms              *Service[domain.Term]
	Groups             *Service[domain.Group]
	Rooms              *Service[domain.Room]
	Subjects           *Service[domain.Subject]
	CourseOfferings    *Service[domain.CourseOffering]
	Enrollments        *Service[domain.Enrollment]
	Sessions           *Service[domain.Session]
	Attendance         *Service[domain.Attendance]
	BiometricTemplates *Service[domain.BiometricTemplate]
	Verifications      *Service[domain.Verification]
	Settings           *Service[domain.Setting]

	AdminRepo      *repository.Repository[domain.Admin]
	InstructorRepo *repository.Repository[domain.Instructor]
	StudentRepo    *repository.Repository[domain.Student]

	resources map[string]Resource
}

// NewCatalog builds the repositories, resolvers, and services of every
// entity type. Repositories are built in dependency order so that dotted
// filter relations can reference their targets.
func NewCatalog(db *gorm.DB, opts CatalogOptions) (*Catalog, error) {
	b := &builder{db: db}
	cost := opts.PasswordCost
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	hash := HashPassword(cost)

	generations := build[domain.Generation](b, repository.WithSearch("generation"))
	departments := build[domain.Department](b, repository.WithSearch("name"))
	terms := build[domain.Term](b, repository.WithSearch("term"))
	groups := build[domain.Group](b, repository.WithSearch("group_name"))
	rooms := build[domain.Room](b, repository.WithSearch("room"))
	admins := build[domain.Admin](b, repository.WithSearch("email", "first_name", "last_name"))
	instructors := build[domain.Instructor](b, repository.WithSearch("first_name", "last_name", "email"))
	settings := build[domain.Setting](b, repository.WithSearch("key", "value"))
	if b.err != nil {
		return nil, b.err
	}

	students := build[domain.Student](b,
		repository.WithSearch("student_code", "first_name", "last_name", "email"),
		repository.WithRelation("generation", generations.Descriptor(), "generation_id"))
	specializations := build[domain.Specialization](b,
		repository.WithSearch("name"),
		repository.WithRelation("department", departments.Descriptor(), "department_id"))
	if b.err != nil {
		return nil, b.err
	}

	subjects := build[domain.Subject](b,
		repository.WithSearch("code", "name"),
		repository.WithRelation("specialization", specializations.Descriptor(), "specialization_id"))
	if b.err != nil {
		return nil, b.err
	}

	offerings := build[domain.CourseOffering](b,
		repository.WithSearch("description", "status"),
		repository.WithRelation("group", groups.Descriptor(), "group_id"),
		repository.WithRelation("subject", subjects.Descriptor(), "subject_id"),
		repository.WithRelation("term", terms.Descriptor(), "term_id"),
		repository.WithRelation("instructor", instructors.Descriptor(), "instructor_id"),
		repository.WithRelation("assistant", instructors.Descriptor(), "assistant_id"),
		repository.WithRelation("room", rooms.Descriptor(), "room_id"),
		repository.WithRelation("generation", generations.Descriptor(), "generation_id"))
	templates := build[domain.BiometricTemplate](b,
		repository.WithSearch("model"),
		repository.WithRelation("student", students.Descriptor(), "student_id"))
	if b.err != nil {
		return nil, b.err
	}

	enrollments := build[domain.Enrollment](b,
		repository.WithSearch("status"),
		repository.WithRelation("student", students.Descriptor(), "student_id"),
		repository.WithRelation("offering", offerings.Descriptor(), "offering_id"))
	sessions := build[domain.Session](b,
		repository.WithSearch("status"),
		repository.WithRelation("offering", offerings.Descriptor(), "offering_id"),
		repository.WithRelation("room", rooms.Descriptor(), "room_id"))
	if b.err != nil {
		return nil, b.err
	}

	verifications := build[domain.Verification](b,
		repository.WithSearch("result"),
		repository.WithRelation("session", sessions.Descriptor(), "session_id"),
		repository.WithRelation("student", students.Descriptor(), "student_id"),
		repository.WithRelation("template", templates.Descriptor(), "template_id"))
	if b.err != nil {
		return nil, b.err
	}

	attendance := build[domain.Attendance](b,
		repository.WithSearch("status", "method", "remarks"),
		repository.WithRelation("session", sessions.Descriptor(), "session_id"),
		repository.WithRelation("student", students.Descriptor(), "student_id"),
		repository.WithRelation("verification", verifications.Descriptor(), "verification_id"))
	if b.err != nil {
		return nil, b.err
	}

	c := &Catalog{
		AdminRepo:      admins,
		InstructorRepo: instructors,
		StudentRepo:    students,
		resources:      make(map[string]Resource),
	}

	c.Admins = register(c, NewService(admins,
		WithRules[domain.Admin](Rules{
			Fields: map[string]string{
				"email":      "email,max=255",
				"password":   PasswordRule,
				"role":       "oneof=" + domain.RoleAdmin + " " + domain.RoleSuperAdmin,
				"first_name": "max=100",
				"last_name":  "max=100",
			},
			Required: []string{"email", "password", "role"},
		}),
		WithPrepare[domain.Admin](hash)))
	c.Instructors = register(c, NewService(instructors,
		WithRules[domain.Instructor](Rules{
			Fields: map[string]string{
				"email":        "email,max=255",
				"password":     PasswordRule,
				"first_name":   "max=100",
				"last_name":    "max=100",
				"phone_number": "max=20",
				"position":     "oneof=" + domain.RoleProfessor + " " + domain.RoleLecturer + " " + domain.RoleAssistant,
			},
			Required: []string{"email", "password", "first_name", "last_name"},
		}),
		WithPrepare[domain.Instructor](hash)))
	c.Students = register(c, NewService(students,
		WithResolver[domain.Student](repository.NewResolver(map[string]repository.IDLookup{
			"generation_id": generations,
		})),
		WithRules[domain.Student](Rules{
			Fields: map[string]string{
				"student_code":  "max=50",
				"email":         "email,max=255",
				"password":      PasswordRule,
				"first_name":    "max=100",
				"last_name":     "max=100",
				"gender":        "max=10",
				"phone_number":  "max=20",
				"address":       "max=255",
				"profile_image": "max=255",
			},
			Required: []string{"student_code", "email", "password", "first_name", "last_name"},
		}),
		WithPrepare[domain.Student](hash)))
	c.Generations = register(c, NewService(generations,
		WithRules[domain.Generation](Rules{
			Fields:   map[string]string{"generation": "min=1,max=50", "start_year": "gte=1900,lte=2200", "end_year": "gte=1900,lte=2200"},
			Required: []string{"generation"},
		})))
	c.Departments = register(c, NewService(departments,
		WithRules[domain.Department](Rules{
			Fields:   map[string]string{"name": "max=255"},
			Required: []string{"name"},
		})))
	c.Specializations = register(c, NewService(specializations,
		WithResolver[domain.Specialization](repository.NewResolver(map[string]repository.IDLookup{
			"department_id": departments,
		})),
		WithRules[domain.Specialization](Rules{
			Fields:   map[string]string{"name": "max=255"},
			Required: []string{"name", "department_id"},
		})))
	c.Terms = register(c, NewService(terms,
		WithRules[domain.Term](Rules{
			Fields:   map[string]string{"term": "max=50"},
			Required: []string{"term"},
		})))
	c.Groups = register(c, NewService(groups,
		WithRules[domain.Group](Rules{
			Fields:   map[string]string{"group_name": "max=100"},
			Required: []string{"group_name"},
		})))
	c.Rooms = register(c, NewService(rooms,
		WithRules[domain.Room](Rules{
			Fields:   map[string]string{"room": "max=50", "capacity": "gte=0"},
			Required: []string{"room"},
		})))
	c.Subjects = register(c, NewService(subjects,
		WithResolver[domain.Subject](repository.NewResolver(map[string]repository.IDLookup{
			"specialization_id": specializations,
		})),
		WithRules[domain.Subject](Rules{
			Fields: map[string]string{
				"code":          "max=50",
				"name":          "max=255",
				"credits":       "gte=0",
				"lecture_hours": "gte=0",
				"lab_hours":     "gte=0",
			},
			Required: []string{"code", "name", "specialization_id"},
		})))
	c.CourseOfferings = register(c, NewService(offerings,
		WithResolver[domain.CourseOffering](repository.NewResolver(map[string]repository.IDLookup{
			"group_id":      groups,
			"subject_id":    subjects,
			"term_id":       terms,
			"instructor_id": instructors,
			"assistant_id":  instructors,
			"room_id":       rooms,
			"generation_id": generations,
		})),
		WithRules[domain.CourseOffering](Rules{
			Fields:   map[string]string{"status": "max=20"},
			Required: []string{"group_id", "subject_id", "term_id", "generation_id"},
		})))
	c.Enrollments = register(c, NewService(enrollments,
		WithResolver[domain.Enrollment](repository.NewResolver(map[string]repository.IDLookup{
			"student_id":  students,
			"offering_id": offerings,
		})),
		WithRules[domain.Enrollment](Rules{
			Fields:   map[string]string{"status": "max=20"},
			Required: []string{"student_id", "offering_id"},
		})))
	c.Sessions = register(c, NewService(sessions,
		WithResolver[domain.Session](repository.NewResolver(map[string]repository.IDLookup{
			"offering_id": offerings,
			"room_id":     rooms,
		})),
		WithRules[domain.Session](Rules{
			Fields:   map[string]string{"status": "max=20"},
			Required: []string{"offering_id", "start_datetime", "end_datetime"},
		})))
	c.Attendance = register(c, NewService(attendance,
		WithResolver[domain.Attendance](repository.NewResolver(map[string]repository.IDLookup{
			"session_id":      sessions,
			"student_id":      students,
			"verification_id": verifications,
		})),
		WithRules[domain.Attendance](Rules{
			Fields:   map[string]string{"status": "max=20", "method": "max=20"},
			Required: []string{"session_id", "student_id"},
		})))
	c.BiometricTemplates = register(c, NewService(templates,
		WithResolver[domain.BiometricTemplate](repository.NewResolver(map[string]repository.IDLookup{
			"student_id": students,
		})),
		WithRules[domain.BiometricTemplate](Rules{
			Fields:   map[string]string{"model": "max=100", "dimension": "gt=0"},
			Required: []string{"student_id"},
		})))
	c.Verifications = register(c, NewService(verifications,
		WithResolver[domain.Verification](repository.NewResolver(map[string]repository.IDLookup{
			"session_id":  sessions,
			"student_id":  students,
			"template_id": templates,
		})),
		WithRules[domain.Verification](Rules{
			Fields: map[string]string{
				"similarity":         "gte=0,lte=1",
				"liveness_score":     "gte=0,lte=1",
				"result":             "max=20",
				"captured_image_url": "max=255",
			},
			Required: []string{"student_id"},
		})))
	c.Settings = register(c, NewService(settings,
		WithRules[domain.Setting](Rules{
			Fields:   map[string]string{"key": "min=1,max=255"},
			Required: []string{"key"},
		}),
		WithPrepare[domain.Setting](opts.SettingPrepare...),
		WithOnChange(opts.SettingHooks...)))

	return c, nil
}

// Select returns the resources with the given names.
func (c *Catalog) Select(names ...string) ([]Resource, error) {
	out := make([]Resource, 0, len(names))
	for _, name := range names {
		r, ok := c.resources[name]
		if !ok {
			return nil, fmt.Errorf("unknown resource %q", name)
		}
		out = append(out, r)
	}
	return out, nil
}

// Names returns the names of every registered resource in sorted order.
func (c *Catalog) Names() []string {
	names := make([]string, 0, len(c.resources))
	for name := range c.resources {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

func register[T any](c *Catalog, svc *Service[T]) *Service[T] {
	c.resources[svc.Name()] = NewHandler(svc)
	return svc
}

// builder records the first repository construction error so the catalog
// can be declared as a flat list.
type builder struct {
	db  *gorm.DB
	err error
}

func build[T any](b *builder, opts ...repository.Option) *repository.Repository[T] {
	if b.err != nil {
		return nil
	}
	repo, err := repository.New[T](b.db, opts...)
	if err != nil {
		b.err = fmt.Errorf("build %T repository: %w", *new(T), err)
		return nil
	}
	return repo
}
