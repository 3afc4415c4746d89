package domain

import "time"

// Student is an enrolled learner.
type Student struct {
	LifecycleModel
	StudentCode  string     `gorm:"size:50;uniqueIndex;not null" json:"student_code"`
	FirstName    string     `gorm:"size:100;not null" json:"first_name"`
	LastName     string     `gorm:"size:100;not null" json:"last_name"`
	Gender       *string    `gorm:"size:10" json:"gender"`
	DOB          *time.Time `gorm:"column:dob" json:"dob"`
	Email        string     `gorm:"size:255;uniqueIndex;not null" json:"email"`
	PhoneNumber  *string    `gorm:"size:20" json:"phone_number"`
	PasswordHash string     `gorm:"size:255" json:"-"`
	Address      *string    `gorm:"size:255" json:"address"`
	ProfileImage *string    `gorm:"size:255" json:"profile_image"`
	GenerationID *uint      `gorm:"index" json:"generation_id"`
}

func (Student) TableName() string { return "students" }

type Generation struct {
	LifecycleModel
	Generation string `gorm:"size:50;not null" json:"generation"`
	StartYear  *int   `json:"start_year"`
	EndYear    *int   `json:"end_year"`
}

func (Generation) TableName() string { return "generations" }

type Department struct {
	LifecycleModel
	Name string `gorm:"size:255;not null" json:"name"`
}

func (Department) TableName() string { return "departments" }

type Specialization struct {
	LifecycleModel
	Name         string `gorm:"size:255;not null" json:"name"`
	DepartmentID *uint  `gorm:"index" json:"department_id"`
}

func (Specialization) TableName() string { return "specializations" }

type Term struct {
	LifecycleModel
	Term string `gorm:"size:50;not null" json:"term"`
}

func (Term) TableName() string { return "terms" }

type Group struct {
	LifecycleModel
	GroupName string `gorm:"size:100;uniqueIndex;not null" json:"group_name"`
}

func (Group) TableName() string { return "groups" }

type Room struct {
	LifecycleModel
	Room     string `gorm:"size:50;uniqueIndex;not null" json:"room"`
	Capacity *int   `json:"capacity"`
}

func (Room) TableName() string { return "rooms" }

type Subject struct {
	LifecycleModel
	Code             string  `gorm:"size:50;uniqueIndex;not null" json:"code"`
	Name             string  `gorm:"size:255;not null" json:"name"`
	Description      *string `gorm:"type:text" json:"description"`
	Credits          *int    `json:"credits"`
	LectureHours     *int    `json:"lecture_hours"`
	LabHours         *int    `json:"lab_hours"`
	SpecializationID *uint   `gorm:"index" json:"specialization_id"`
}

func (Subject) TableName() string { return "subjects" }

// CourseOffering is one subject taught to one group in one term.
type CourseOffering struct {
	LifecycleModel
	GroupID      *uint      `gorm:"index" json:"group_id"`
	SubjectID    *uint      `gorm:"index" json:"subject_id"`
	TermID       *uint      `gorm:"index" json:"term_id"`
	InstructorID *uint      `gorm:"index" json:"instructor_id"`
	AssistantID  *uint      `gorm:"index" json:"assistant_id"`
	RoomID       *uint      `gorm:"index" json:"room_id"`
	GenerationID *uint      `gorm:"index" json:"generation_id"`
	Description  *string    `gorm:"type:text" json:"description"`
	Status       *string    `gorm:"size:20" json:"status"`
	StartTime    *time.Time `json:"start_time"`
	EndTime      *time.Time `json:"end_time"`
}

func (CourseOffering) TableName() string { return "course_offerings" }

type Enrollment struct {
	LifecycleModel
	StudentID  uint       `gorm:"index;not null" json:"student_id"`
	OfferingID uint       `gorm:"index;not null" json:"offering_id"`
	Status     *string    `gorm:"size:20" json:"status"`
	EnrolledAt *time.Time `json:"enrolled_at"`
	DroppedAt  *time.Time `json:"dropped_at"`
}

func (Enrollment) TableName() string { return "enrollments" }

// Session is one scheduled meeting of a course offering.
type Session struct {
	LifecycleModel
	OfferingID    uint       `gorm:"index;not null" json:"offering_id"`
	RoomID        *uint      `gorm:"index" json:"room_id"`
	StartDatetime *time.Time `json:"start_datetime"`
	EndDatetime   *time.Time `json:"end_datetime"`
	Status        *string    `gorm:"size:20" json:"status"`
}

func (Session) TableName() string { return "sessions" }

type Attendance struct {
	LifecycleModel
	SessionID      uint       `gorm:"index;not null" json:"session_id"`
	StudentID      uint       `gorm:"index;not null" json:"student_id"`
	Status         string     `gorm:"size:20;not null;default:present" json:"status"`
	CheckinTime    *time.Time `json:"checkin_time"`
	Method         *string    `gorm:"size:20" json:"method"`
	VerificationID *uint      `gorm:"index" json:"verification_id"`
	Remarks        *string    `gorm:"type:text" json:"remarks"`
}

func (Attendance) TableName() string { return "attendance" }

// BiometricTemplate stores a face embedding for a student.
type BiometricTemplate struct {
	LifecycleModel
	StudentID uint    `gorm:"index;not null" json:"student_id"`
	Embedding []byte  `json:"embedding"`
	Model     *string `gorm:"size:100" json:"model"`
	Dimension *int    `json:"dimension"`
}

func (BiometricTemplate) TableName() string { return "biometric_templates" }

// Verification records one biometric check-in attempt.
type Verification struct {
	LifecycleModel
	SessionID        *uint      `gorm:"index" json:"session_id"`
	StudentID        uint       `gorm:"index;not null" json:"student_id"`
	TemplateID       *uint      `gorm:"index" json:"template_id"`
	Similarity       *float64   `json:"similarity"`
	LivenessScore    *float64   `json:"liveness_score"`
	Result           *string    `gorm:"size:20" json:"result"`
	CapturedImageURL *string    `gorm:"size:255" json:"captured_image_url"`
	CapturedAt       *time.Time `json:"captured_at"`
}

func (Verification) TableName() string { return "verifications" }

// Setting is a runtime-tunable key/value pair. Settings have no lifecycle column.
type Setting struct {
	BaseModel
	Key         string  `gorm:"size:255;uniqueIndex;not null" json:"key"`
	Value       *string `gorm:"type:text" json:"value"`
	Description *string `gorm:"type:text" json:"description"`
}

func (Setting) TableName() string { return "settings" }

// Models lists every persisted type for migration.
func Models() []any {
	return []any{
		&Admin{}, &Instructor{}, &Student{}, &Generation{}, &Department{},
		&Specialization{}, &Term{}, &Group{}, &Room{}, &Subject{},
		&CourseOffering{}, &Enrollment{}, &Session{}, &Attendance{},
		&BiometricTemplate{}, &Verification{}, &Setting{},
	}
}
