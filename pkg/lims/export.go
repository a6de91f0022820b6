package lims

import (
	"encoding/json"
	"fmt"
	"strconv"
)

// APIPrefix is the path every resource is served under.
const APIPrefix = "/api/v1"

// Links builds absolute resource URLs from an origin such as
// "https://lims.example.org".
type Links struct {
	Origin string
}

func (l Links) Collection(collection string) string {
	return l.Origin + APIPrefix + "/" + collection
}

func (l Links) Resource(collection string, id uint) string {
	return l.Collection(collection) + "/" + strconv.FormatUint(uint64(id), 10)
}

func (l Links) Sub(collection string, id uint, sub string) string {
	return l.Resource(collection, id) + "/" + sub
}

// Optional renders a nullable relation, "" when unset.
func (l Links) Optional(collection string, id *uint) string {
	if id == nil || *id == 0 {
		return ""
	}
	return l.Resource(collection, *id)
}

func requiredLink(l Links, resource, field, collection string, id uint) (string, error) {
	if id == 0 {
		return "", fmt.Errorf("export %s: %s is unset", resource, field)
	}
	return l.Resource(collection, id), nil
}

func rawOrNull(b []byte) json.RawMessage {
	if len(b) == 0 {
		return json.RawMessage("null")
	}
	return json.RawMessage(b)
}

type AgencyView struct {
	SelfURL     string `json:"self_url"`
	ID          uint   `json:"id"`
	Name        string `json:"name"`
	Address     string `json:"address"`
	BatchesURL  string `json:"batches_url"`
	ContactsURL string `json:"contacts_url"`
}

func exportAgency(l Links, a *Agency) (interface{}, error) {
	return AgencyView{
		SelfURL:     l.Resource("agencies", a.ID),
		ID:          a.ID,
		Name:        a.Name,
		Address:     a.Address,
		BatchesURL:  l.Sub("agencies", a.ID, "batches"),
		ContactsURL: l.Sub("agencies", a.ID, "contacts"),
	}, nil
}

type ContactView struct {
	SelfURL    string `json:"self_url"`
	ID         uint   `json:"id"`
	Name       string `json:"name"`
	Phone      string `json:"phone"`
	Email      string `json:"email"`
	AgencyURL  string `json:"agency_url"`
	BatchesURL string `json:"batches_url"`
}

func exportContact(l Links, c *Contact) (interface{}, error) {
	agency, err := requiredLink(l, "contact", "agency_id", "agencies", c.AgencyID)
	if err != nil {
		return nil, err
	}
	return ContactView{
		SelfURL:    l.Resource("contacts", c.ID),
		ID:         c.ID,
		Name:       c.Name,
		Phone:      c.Phone,
		Email:      c.Email,
		AgencyURL:  agency,
		BatchesURL: l.Sub("contacts", c.ID, "batches"),
	}, nil
}

type BatchView struct {
	SelfURL     string `json:"self_url"`
	ID          uint   `json:"id"`
	DeliverTime string `json:"deliver_time"`
	ArriveTime  string `json:"arrive_time"`
	StoreTime   string `json:"store_time"`
	ExpressNum  string `json:"express_num"`
	Remark      string `json:"remark"`
	AgencyURL   string `json:"agency_url"`
	ContactURL  string `json:"contact_url"`
	PositionURL string `json:"position_url"`
	ProjectURL  string `json:"project_url"`
	RoadmapURL  string `json:"roadmap_url"`
	SamplesURL  string `json:"samples_url"`
}

func exportBatch(l Links, b *Batch) (interface{}, error) {
	agency, err := requiredLink(l, "batch", "agency_id", "agencies", b.AgencyID)
	if err != nil {
		return nil, err
	}
	return BatchView{
		SelfURL:     l.Resource("batches", b.ID),
		ID:          b.ID,
		DeliverTime: FormatTimestamp(b.DeliverTime),
		ArriveTime:  FormatTimestamp(b.ArriveTime),
		StoreTime:   FormatTimestamp(b.StoreTime),
		ExpressNum:  b.ExpressNum,
		Remark:      b.Remark,
		AgencyURL:   agency,
		ContactURL:  l.Optional("contacts", b.ContactID),
		PositionURL: l.Optional("positions", b.PositionID),
		ProjectURL:  l.Optional("projects", b.ProjectID),
		RoadmapURL:  l.Optional("roadmaps", b.RoadmapID),
		SamplesURL:  l.Sub("batches", b.ID, "samples"),
	}, nil
}

type SampleView struct {
	SelfURL        string `json:"self_url"`
	ID             uint   `json:"id"`
	PMID           string `json:"pmid"`
	OriNum         string `json:"ori_num"`
	Type           *int   `json:"type"`
	Status         *int   `json:"status"`
	SequenceMethod *int   `json:"sequence_method"`
	Primer         *int   `json:"primer"`
	Sequencer      *int   `json:"sequencer"`
	BatchURL       string `json:"batch_url"`
	ClientURL      string `json:"client_url"`
	LibraryURL     string `json:"library_url"`
	ResultsURL     string `json:"results_url"`
}

func exportSample(l Links, s *Sample) (interface{}, error) {
	batch, err := requiredLink(l, "sample", "batch_id", "batches", s.BatchID)
	if err != nil {
		return nil, err
	}
	return SampleView{
		SelfURL:        l.Resource("samples", s.ID),
		ID:             s.ID,
		PMID:           s.PMID,
		OriNum:         s.OriNum,
		Type:           s.Type,
		Status:         s.Status,
		SequenceMethod: s.SequenceMethod,
		Primer:         s.Primer,
		Sequencer:      s.Sequencer,
		BatchURL:       batch,
		ClientURL:      l.Optional("clients", s.ClientID),
		LibraryURL:     l.Optional("libraries", s.LibraryID),
		ResultsURL:     l.Sub("samples", s.ID, "results"),
	}, nil
}

type ClientView struct {
	SelfURL    string          `json:"self_url"`
	ID         uint            `json:"id"`
	Name       string          `json:"name"`
	Gender     *int            `json:"gender"`
	Age        *int            `json:"age"`
	Height     *float64        `json:"height"`
	Weight     *float64        `json:"weight"`
	Extra      json.RawMessage `json:"extra"`
	SamplesURL string          `json:"samples_url"`
}

func exportClient(l Links, c *Client) (interface{}, error) {
	return ClientView{
		SelfURL:    l.Resource("clients", c.ID),
		ID:         c.ID,
		Name:       c.Name,
		Gender:     c.Gender,
		Age:        c.Age,
		Height:     c.Height,
		Weight:     c.Weight,
		Extra:      rawOrNull(c.Extra),
		SamplesURL: l.Sub("clients", c.ID, "samples"),
	}, nil
}

type ResultView struct {
	SelfURL   string          `json:"self_url"`
	ID        uint            `json:"id"`
	Date      string          `json:"date"`
	Status    string          `json:"status"`
	Auditor   string          `json:"auditor"`
	Content   json.RawMessage `json:"content"`
	SampleURL string          `json:"sample_url"`
}

func exportResult(l Links, r *Result) (interface{}, error) {
	sample, err := requiredLink(l, "result", "sample_id", "samples", r.SampleID)
	if err != nil {
		return nil, err
	}
	return ResultView{
		SelfURL:   l.Resource("results", r.ID),
		ID:        r.ID,
		Date:      FormatTimestamp(r.Date),
		Status:    r.Status,
		Auditor:   r.Auditor,
		Content:   rawOrNull(r.Content),
		SampleURL: sample,
	}, nil
}

type InfoView struct {
	SelfURL       string   `json:"self_url"`
	ID            uint     `json:"id"`
	CName         string   `json:"c_name"`
	EName         string   `json:"e_name"`
	Type          string   `json:"type"`
	Desc          string   `json:"desc"`
	RefMin        *float64 `json:"ref_min"`
	RefMax        *float64 `json:"ref_max"`
	Alias         string   `json:"alias"`
	RefsURL       string   `json:"refs_url"`
	CategoriesURL string   `json:"categories_url"`
}

func exportInfo(l Links, i *Info) (interface{}, error) {
	return InfoView{
		SelfURL:       l.Resource("infos", i.ID),
		ID:            i.ID,
		CName:         i.CName,
		EName:         i.EName,
		Type:          i.Type,
		Desc:          i.Desc,
		RefMin:        i.RefMin,
		RefMax:        i.RefMax,
		Alias:         i.Alias,
		RefsURL:       l.Sub("infos", i.ID, "refs"),
		CategoriesURL: l.Sub("infos", i.ID, "categories"),
	}, nil
}

type CategoryView struct {
	SelfURL  string `json:"self_url"`
	ID       uint   `json:"id"`
	Name     string `json:"name"`
	InfosURL string `json:"infos_url"`
}

func exportCategory(l Links, c *Category) (interface{}, error) {
	return CategoryView{
		SelfURL:  l.Resource("categories", c.ID),
		ID:       c.ID,
		Name:     c.Name,
		InfosURL: l.Sub("categories", c.ID, "infos"),
	}, nil
}

type RefView struct {
	SelfURL string `json:"self_url"`
	ID      uint   `json:"id"`
	Status  *int   `json:"status"`
	Color   *int   `json:"color"`
	Img     bool   `json:"img"`
	Desc    string `json:"desc"`
	InfoURL string `json:"info_url"`
}

func exportRef(l Links, r *Ref) (interface{}, error) {
	info, err := requiredLink(l, "ref", "info_id", "infos", r.InfoID)
	if err != nil {
		return nil, err
	}
	return RefView{
		SelfURL: l.Resource("refs", r.ID),
		ID:      r.ID,
		Status:  r.Status,
		Color:   r.Color,
		Img:     r.Img,
		Desc:    r.Desc,
		InfoURL: info,
	}, nil
}

// NamedView covers projects, roadmaps, positions and libraries. Only the
// collection link field differs between them.
type NamedView struct {
	SelfURL    string `json:"self_url"`
	ID         uint   `json:"id"`
	Name       string `json:"name"`
	BatchesURL string `json:"batches_url,omitempty"`
	SamplesURL string `json:"samples_url,omitempty"`
}

func exportProject(l Links, e *Project) (interface{}, error) {
	return NamedView{
		SelfURL:    l.Resource("projects", e.ID),
		ID:         e.ID,
		Name:       e.Name,
		BatchesURL: l.Sub("projects", e.ID, "batches"),
	}, nil
}

func exportRoadmap(l Links, e *Roadmap) (interface{}, error) {
	return NamedView{
		SelfURL:    l.Resource("roadmaps", e.ID),
		ID:         e.ID,
		Name:       e.Name,
		BatchesURL: l.Sub("roadmaps", e.ID, "batches"),
	}, nil
}

func exportPosition(l Links, e *Position) (interface{}, error) {
	return NamedView{
		SelfURL:    l.Resource("positions", e.ID),
		ID:         e.ID,
		Name:       e.Name,
		BatchesURL: l.Sub("positions", e.ID, "batches"),
	}, nil
}

func exportLibrary(l Links, e *Library) (interface{}, error) {
	return NamedView{
		SelfURL:    l.Resource("libraries", e.ID),
		ID:         e.ID,
		Name:       e.Name,
		SamplesURL: l.Sub("libraries", e.ID, "samples"),
	}, nil
}
