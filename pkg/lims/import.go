package lims

func importAgency(ic *importContext, p Payload, a *Agency) error {
	d := ic.decoder("agency", p, "name")
	d.str("name", &a.Name, true)
	d.str("address", &a.Address, false)
	return d.finish(a)
}

func importContact(ic *importContext, p Payload, c *Contact) error {
	d := ic.decoder("contact", p, "name", "agency_id")
	d.str("name", &c.Name, true)
	d.str("phone", &c.Phone, false)
	d.str("email", &c.Email, false)
	d.ref("agency_id", "agencies", &c.AgencyID)
	return d.finish(c)
}

func importBatch(ic *importContext, p Payload, b *Batch) error {
	d := ic.decoder("batch", p, "express_num", "agency_id")
	d.str("express_num", &b.ExpressNum, true)
	d.str("remark", &b.Remark, false)
	d.timestamp("deliver_time", &b.DeliverTime)
	d.timestamp("arrive_time", &b.ArriveTime)
	d.timestamp("store_time", &b.StoreTime)
	d.ref("agency_id", "agencies", &b.AgencyID)
	d.optRef("contact_id", "contacts", &b.ContactID)
	d.optRef("position_id", "positions", &b.PositionID)
	d.optRef("project_id", "projects", &b.ProjectID)
	d.optRef("roadmap_id", "roadmaps", &b.RoadmapID)
	if ic.mode == ModeCreate {
		if b.DeliverTime.IsZero() {
			b.DeliverTime = ic.now
		}
		if b.ArriveTime.IsZero() {
			b.ArriveTime = ic.now
		}
		if b.StoreTime.IsZero() {
			b.StoreTime = ic.now
		}
	}
	return d.finish(b)
}

func importSample(ic *importContext, p Payload, s *Sample) error {
	d := ic.decoder("sample", p, "pmid", "batch_id")
	d.str("pmid", &s.PMID, true)
	d.str("ori_num", &s.OriNum, false)
	d.intPtr("type", &s.Type)
	d.intPtr("status", &s.Status)
	d.intPtr("sequence_method", &s.SequenceMethod)
	d.intPtr("primer", &s.Primer)
	d.intPtr("sequencer", &s.Sequencer)
	d.ref("batch_id", "batches", &s.BatchID)
	d.optRef("client_id", "clients", &s.ClientID)
	d.optRef("library_id", "libraries", &s.LibraryID)
	return d.finish(s)
}

func importClient(ic *importContext, p Payload, c *Client) error {
	d := ic.decoder("client", p, "name")
	d.str("name", &c.Name, true)
	d.intPtr("gender", &c.Gender)
	d.intPtr("age", &c.Age)
	d.floatPtr("height", &c.Height)
	d.floatPtr("weight", &c.Weight)
	d.rawJSON("extra", &c.Extra)
	return d.finish(c)
}

func importResult(ic *importContext, p Payload, r *Result) error {
	d := ic.decoder("result", p, "sample_id")
	d.timestamp("date", &r.Date)
	d.str("status", &r.Status, false)
	d.str("auditor", &r.Auditor, false)
	d.rawJSON("content", &r.Content)
	d.ref("sample_id", "samples", &r.SampleID)
	if ic.mode == ModeCreate {
		if r.Date.IsZero() {
			r.Date = ic.now
		}
		if r.Status == "" {
			r.Status = ResultUnissued
		}
	}
	return d.finish(r)
}

func importInfo(ic *importContext, p Payload, i *Info) error {
	d := ic.decoder("info", p, "c_name")
	d.str("c_name", &i.CName, true)
	d.str("e_name", &i.EName, false)
	d.str("type", &i.Type, false)
	d.str("desc", &i.Desc, false)
	d.floatPtr("ref_min", &i.RefMin)
	d.floatPtr("ref_max", &i.RefMax)
	d.str("alias", &i.Alias, false)
	return d.finish(i)
}

func importCategory(ic *importContext, p Payload, c *Category) error {
	d := ic.decoder("category", p, "name")
	d.str("name", &c.Name, true)
	return d.finish(c)
}

func importRef(ic *importContext, p Payload, r *Ref) error {
	d := ic.decoder("ref", p, "info_id")
	d.intPtr("status", &r.Status)
	d.intPtr("color", &r.Color)
	d.boolean("img", &r.Img)
	d.str("desc", &r.Desc, false)
	d.ref("info_id", "infos", &r.InfoID)
	return d.finish(r)
}

// importNamed serves the four name-only reference tables.
func importNamed(resource string, name *string, ic *importContext, p Payload, entity interface{}) error {
	d := ic.decoder(resource, p, "name")
	d.str("name", name, true)
	return d.finish(entity)
}

func importProject(ic *importContext, p Payload, e *Project) error {
	return importNamed("project", &e.Name, ic, p, e)
}

func importRoadmap(ic *importContext, p Payload, e *Roadmap) error {
	return importNamed("roadmap", &e.Name, ic, p, e)
}

func importPosition(ic *importContext, p Payload, e *Position) error {
	return importNamed("position", &e.Name, ic, p, e)
}

func importLibrary(ic *importContext, p Payload, e *Library) error {
	return importNamed("library", &e.Name, ic, p, e)
}
