package lims

import (
	"time"

	"gorm.io/datatypes"
)

const (
	ResultUnissued   = "unissued"
	ResultUnreviewed = "unreviewed"
	ResultIssued     = "issued"
)

// Entity is implemented by every persisted resource through Base.
type Entity interface {
	PrimaryKey() uint
}

type Base struct {
	ID uint `gorm:"primaryKey;autoIncrement" validate:"-"`
}

func (b Base) PrimaryKey() uint { return b.ID }

// Relation pointers below only drive foreign key creation in AutoMigrate; the
// store never loads or saves through them.

type Agency struct {
	Base
	Name    string `gorm:"column:name;size:64;not null" validate:"required,max=64"`
	Address string `gorm:"column:address;type:text"`
}

func (Agency) TableName() string { return "agencies" }

type Contact struct {
	Base
	Name     string `gorm:"column:name;size:64;not null" validate:"required,max=64"`
	Phone    string `gorm:"column:phone;size:32" validate:"max=32"`
	Email    string `gorm:"column:email;size:128" validate:"omitempty,email,max=128"`
	AgencyID uint   `gorm:"column:agency_id;not null;index" validate:"required"`

	Agency *Agency `gorm:"foreignKey:AgencyID;constraint:OnDelete:RESTRICT" validate:"-"`
}

func (Contact) TableName() string { return "contacts" }

type Batch struct {
	Base
	AgencyID    uint      `gorm:"column:agency_id;not null;index" validate:"required"`
	ContactID   *uint     `gorm:"column:contact_id;index"`
	DeliverTime time.Time `gorm:"column:deliver_time;type:timestamp"`
	ArriveTime  time.Time `gorm:"column:arrive_time;type:timestamp"`
	StoreTime   time.Time `gorm:"column:store_time;type:timestamp"`
	ExpressNum  string    `gorm:"column:express_num;size:30;not null" validate:"required,max=30"`
	PositionID  *uint     `gorm:"column:position_id;index"`
	ProjectID   *uint     `gorm:"column:project_id;index"`
	RoadmapID   *uint     `gorm:"column:roadmap_id;index"`
	Remark      string    `gorm:"column:remark;type:text"`

	Agency   *Agency   `gorm:"foreignKey:AgencyID;constraint:OnDelete:RESTRICT" validate:"-"`
	Contact  *Contact  `gorm:"foreignKey:ContactID;constraint:OnDelete:SET NULL" validate:"-"`
	Position *Position `gorm:"foreignKey:PositionID;constraint:OnDelete:SET NULL" validate:"-"`
	Project  *Project  `gorm:"foreignKey:ProjectID;constraint:OnDelete:SET NULL" validate:"-"`
	Roadmap  *Roadmap  `gorm:"foreignKey:RoadmapID;constraint:OnDelete:SET NULL" validate:"-"`
}

func (Batch) TableName() string { return "batches" }

type Sample struct {
	Base
	BatchID        uint   `gorm:"column:batch_id;not null;index" validate:"required"`
	ClientID       *uint  `gorm:"column:client_id;index"`
	LibraryID      *uint  `gorm:"column:library_id;index"`
	PMID           string `gorm:"column:pmid;size:20;not null" validate:"required,max=20"`
	OriNum         string `gorm:"column:ori_num;size:20" validate:"max=20"`
	Type           *int   `gorm:"column:type"`
	Status         *int   `gorm:"column:status"`
	SequenceMethod *int   `gorm:"column:sequence_method"`
	Primer         *int   `gorm:"column:primer"`
	Sequencer      *int   `gorm:"column:sequencer"`

	Batch   *Batch   `gorm:"foreignKey:BatchID;constraint:OnDelete:RESTRICT" validate:"-"`
	Client  *Client  `gorm:"foreignKey:ClientID;constraint:OnDelete:SET NULL" validate:"-"`
	Library *Library `gorm:"foreignKey:LibraryID;constraint:OnDelete:SET NULL" validate:"-"`
}

func (Sample) TableName() string { return "samples" }

type Client struct {
	Base
	Name   string   `gorm:"column:name;size:20;not null" validate:"required,max=20"`
	Gender *int     `gorm:"column:gender"`
	Age    *int     `gorm:"column:age" validate:"omitempty,min=0"`
	Height *float64 `gorm:"column:height"`
	Weight *float64 `gorm:"column:weight"`
	// Extra is kept as the submitted JSON text; json (not jsonb) preserves key order.
	Extra datatypes.JSON `gorm:"column:extra;type:json"`
}

func (Client) TableName() string { return "clients" }

type Result struct {
	Base
	SampleID uint           `gorm:"column:sample_id;not null;index" validate:"required"`
	Date     time.Time      `gorm:"column:date;type:timestamp"`
	Status   string         `gorm:"column:status;size:16;not null;default:unissued" validate:"oneof=unissued unreviewed issued"`
	Auditor  string         `gorm:"column:auditor;size:32" validate:"max=32"`
	Content  datatypes.JSON `gorm:"column:content;type:json"`

	Sample *Sample `gorm:"foreignKey:SampleID;constraint:OnDelete:RESTRICT" validate:"-"`
}

func (Result) TableName() string { return "results" }

type Info struct {
	Base
	CName  string   `gorm:"column:c_name;size:255;not null" validate:"required,max=255"`
	EName  string   `gorm:"column:e_name;size:255" validate:"max=255"`
	Type   string   `gorm:"column:type;size:50" validate:"max=50"`
	Desc   string   `gorm:"column:desc;type:text"`
	RefMin *float64 `gorm:"column:ref_min"`
	RefMax *float64 `gorm:"column:ref_max"`
	Alias  string   `gorm:"column:alias;size:50" validate:"max=50"`
}

func (Info) TableName() string { return "infos" }

type Category struct {
	Base
	Name string `gorm:"column:name;size:64;not null" validate:"required,max=64"`
}

func (Category) TableName() string { return "categories" }

// CategoryInfo is the join entity tagging infos with categories.
type CategoryInfo struct {
	Base
	CategoryID uint `gorm:"column:category_id;not null;uniqueIndex:idx_category_info"`
	InfoID     uint `gorm:"column:info_id;not null;uniqueIndex:idx_category_info;index"`

	Category *Category `gorm:"foreignKey:CategoryID;constraint:OnDelete:CASCADE" validate:"-"`
	Info     *Info     `gorm:"foreignKey:InfoID;constraint:OnDelete:CASCADE" validate:"-"`
}

func (CategoryInfo) TableName() string { return "category_infos" }

type Ref struct {
	Base
	InfoID uint   `gorm:"column:info_id;not null;index" validate:"required"`
	Status *int   `gorm:"column:status"`
	Color  *int   `gorm:"column:color"`
	Img    bool   `gorm:"column:img;not null;default:false"`
	Desc   string `gorm:"column:desc;type:text"`

	Info *Info `gorm:"foreignKey:InfoID;constraint:OnDelete:RESTRICT" validate:"-"`
}

func (Ref) TableName() string { return "refs" }

type Project struct {
	Base
	Name string `gorm:"column:name;size:64;not null" validate:"required,max=64"`
}

func (Project) TableName() string { return "projects" }

type Roadmap struct {
	Base
	Name string `gorm:"column:name;size:64;not null" validate:"required,max=64"`
}

func (Roadmap) TableName() string { return "roadmaps" }

type Position struct {
	Base
	Name string `gorm:"column:name;size:64;not null" validate:"required,max=64"`
}

func (Position) TableName() string { return "positions" }

type Library struct {
	Base
	Name string `gorm:"column:name;size:64;not null" validate:"required,max=64"`
}

func (Library) TableName() string { return "libraries" }

// AllModels lists every table in dependency order for AutoMigrate.
func AllModels() []interface{} {
	return []interface{}{
		&Agency{},
		&Contact{},
		&Project{},
		&Roadmap{},
		&Position{},
		&Library{},
		&Client{},
		&Batch{},
		&Sample{},
		&Result{},
		&Info{},
		&Category{},
		&CategoryInfo{},
		&Ref{},
	}
}
