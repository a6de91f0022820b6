package lims

// Resource describes how one entity type is imported, exported and addressed.
type Resource[T Entity] struct {
	// Name is the singular form used in errors, events and metrics.
	Name string
	// Collection is the URL segment, table name and list envelope key.
	Collection string
	Import     func(ic *importContext, p Payload, e *T) error
	Export     func(l Links, e *T) (interface{}, error)
}

var (
	Agencies   = &Resource[Agency]{Name: "agency", Collection: "agencies", Import: importAgency, Export: exportAgency}
	Contacts   = &Resource[Contact]{Name: "contact", Collection: "contacts", Import: importContact, Export: exportContact}
	Batches    = &Resource[Batch]{Name: "batch", Collection: "batches", Import: importBatch, Export: exportBatch}
	Samples    = &Resource[Sample]{Name: "sample", Collection: "samples", Import: importSample, Export: exportSample}
	Clients    = &Resource[Client]{Name: "client", Collection: "clients", Import: importClient, Export: exportClient}
	Results    = &Resource[Result]{Name: "result", Collection: "results", Import: importResult, Export: exportResult}
	Infos      = &Resource[Info]{Name: "info", Collection: "infos", Import: importInfo, Export: exportInfo}
	Categories = &Resource[Category]{Name: "category", Collection: "categories", Import: importCategory, Export: exportCategory}
	Refs       = &Resource[Ref]{Name: "ref", Collection: "refs", Import: importRef, Export: exportRef}
	Projects   = &Resource[Project]{Name: "project", Collection: "projects", Import: importProject, Export: exportProject}
	Roadmaps   = &Resource[Roadmap]{Name: "roadmap", Collection: "roadmaps", Import: importRoadmap, Export: exportRoadmap}
	Positions  = &Resource[Position]{Name: "position", Collection: "positions", Import: importPosition, Export: exportPosition}
	Libraries  = &Resource[Library]{Name: "library", Collection: "libraries", Import: importLibrary, Export: exportLibrary}
)
