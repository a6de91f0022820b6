// Package seed loads reference data (categories, infos with their refs,
// projects, roadmaps, positions, libraries) from YAML and writes it through
// the regular import rules.
package seed

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/labtrack/lims/pkg/common/logger"
	"github.com/labtrack/lims/pkg/lims"
	"gopkg.in/yaml.v3"
)

// Record is a flat set of payload fields.
type Record map[string]interface{}

// InfoRecord is an info plus the refs it owns and the category names it is
// tagged with.
type InfoRecord struct {
	Fields     Record   `yaml:",inline"`
	Categories []string `yaml:"categories"`
	Refs       []Record `yaml:"refs"`
}

type File struct {
	Categories []Record     `yaml:"categories"`
	Infos      []InfoRecord `yaml:"infos"`
	Projects   []Record     `yaml:"projects"`
	Roadmaps   []Record     `yaml:"roadmaps"`
	Positions  []Record     `yaml:"positions"`
	Libraries  []Record     `yaml:"libraries"`
}

// Summary counts what Apply did per collection.
type Summary struct {
	Created map[string]int
	Skipped map[string]int
}

func (s Summary) add(collection string, created bool) {
	if created {
		s.Created[collection]++
	} else {
		s.Skipped[collection]++
	}
}

func Load(path string) (File, error) {
	if path == "" {
		return File{}, fmt.Errorf("seed file path is empty")
	}
	content, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return File{}, err
	}
	return Parse(content)
}

func Parse(content []byte) (File, error) {
	var f File
	if err := yaml.Unmarshal(content, &f); err != nil {
		return File{}, fmt.Errorf("parse seed file: %w", err)
	}
	return f, nil
}

// Apply writes f. Rows whose natural key (name, or c_name for infos) already
// exists are left alone, so a file can be applied repeatedly.
func Apply(ctx context.Context, svc *lims.Service, f File) (Summary, error) {
	sum := Summary{Created: map[string]int{}, Skipped: map[string]int{}}

	categoryIDs := map[string]uint{}
	for _, rec := range f.Categories {
		id, created, err := ensure(ctx, svc, lims.Categories, "name", rec)
		if err != nil {
			return sum, err
		}
		categoryIDs[fmt.Sprint(rec["name"])] = id
		sum.add("categories", created)
	}

	if err := seedNamed(ctx, svc, lims.Projects, f.Projects, sum); err != nil {
		return sum, err
	}
	if err := seedNamed(ctx, svc, lims.Roadmaps, f.Roadmaps, sum); err != nil {
		return sum, err
	}
	if err := seedNamed(ctx, svc, lims.Positions, f.Positions, sum); err != nil {
		return sum, err
	}
	if err := seedNamed(ctx, svc, lims.Libraries, f.Libraries, sum); err != nil {
		return sum, err
	}

	for _, info := range f.Infos {
		if err := applyInfo(ctx, svc, info, categoryIDs, sum); err != nil {
			return sum, err
		}
	}

	logger.FromContext(ctx).WithField("created", sum.Created).WithField("skipped", sum.Skipped).Info("Seed applied")
	return sum, nil
}

func applyInfo(ctx context.Context, svc *lims.Service, info InfoRecord, categoryIDs map[string]uint, sum Summary) error {
	infoID, created, err := ensure(ctx, svc, lims.Infos, "c_name", info.Fields)
	if err != nil {
		return err
	}
	sum.add("infos", created)
	if !created {
		return nil
	}

	for _, ref := range info.Refs {
		rec := Record{}
		for k, v := range ref {
			rec[k] = v
		}
		rec["info_id"] = infoID
		p, err := lims.PayloadFromMap(rec)
		if err != nil {
			return err
		}
		if _, err := lims.Create(ctx, svc, lims.Refs, p, nil); err != nil {
			return fmt.Errorf("seed ref for info %v: %w", info.Fields["c_name"], err)
		}
		sum.add("refs", true)
	}

	for _, name := range info.Categories {
		categoryID, ok := categoryIDs[name]
		if !ok {
			id, found, err := svc.Lookup(ctx, "categories", "name", name)
			if err != nil {
				return err
			}
			if !found {
				return fmt.Errorf("seed info %v: unknown category %q", info.Fields["c_name"], name)
			}
			categoryID = id
		}
		if err := svc.LinkCategoryInfo(ctx, categoryID, infoID); err != nil {
			return err
		}
	}
	return nil
}

// ensure creates rec unless a row with the same key value exists.
func ensure[T lims.Entity](ctx context.Context, svc *lims.Service, res *lims.Resource[T], key string, rec Record) (uint, bool, error) {
	if v, ok := rec[key]; ok && v != nil {
		id, found, err := svc.Lookup(ctx, res.Collection, key, v)
		if err != nil {
			return 0, false, err
		}
		if found {
			return id, false, nil
		}
	}
	p, err := lims.PayloadFromMap(rec)
	if err != nil {
		return 0, false, err
	}
	e, err := lims.Create(ctx, svc, res, p, nil)
	if err != nil {
		return 0, false, fmt.Errorf("seed %s: %w", res.Name, err)
	}
	return (*e).PrimaryKey(), true, nil
}

func seedNamed[T lims.Entity](ctx context.Context, svc *lims.Service, res *lims.Resource[T], records []Record, sum Summary) error {
	for _, rec := range records {
		_, created, err := ensure(ctx, svc, res, "name", rec)
		if err != nil {
			return err
		}
		sum.add(res.Collection, created)
	}
	return nil
}
