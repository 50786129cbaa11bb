package runtimeinv

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/distribution/reference"
	"github.com/docker/docker/api/types/filters"
	"github.com/imdario/mergo"
	"github.com/sirupsen/logrus"

	"github.com/hack-dance/hackd/pkg/utils"
)

// Label keys the compose-compatible runtimes attach to every managed
// container; Container Inventory reads exactly these per §4.D.
const (
	labelProject    = "com.docker.compose.project"
	labelService    = "com.docker.compose.service"
	labelOneOff     = "com.docker.compose.oneoff"
	labelWorkingDir = "com.docker.compose.project.working_dir"
)

// CommandTemplates are the Go templates used to shell out to the runtime
// binary, generalizing the teacher's CommandTemplatesConfig/CommandObject
// pair to the inventory's two operations.
type CommandTemplates struct {
	List    string
	Inspect string
}

// DefaultCommandTemplates mirrors the default templates the teacher ships
// for docker-compose, adapted to plain `ps`/`inspect` JSON-lines output.
func DefaultCommandTemplates() CommandTemplates {
	return CommandTemplates{
		List:    "{{ .Runtime }} ps --all --no-trunc --format {{ .JSONFormat }}",
		Inspect: "{{ .Runtime }} inspect --format {{ .JSONFormat }} {{ .IDs }}",
	}
}

type commandObject struct {
	Runtime    string
	JSONFormat string
	IDs        string
}

// Inspector shells out to enumerate and inspect containers, grouping the
// result into projects/services per §4.D.
type Inspector struct {
	shell     *Shell
	runtime   string
	templates CommandTemplates
	log       *logrus.Entry
}

// NewInspector builds an Inspector for runtimeBin ("docker" or "podman"),
// overriding any of the default templates with overrides via mergo.Merge,
// the same merge-over-defaults idiom as DockerCommand.NewCommandObject.
func NewInspector(runtimeBin string, overrides CommandTemplates, log *logrus.Entry) *Inspector {
	templates := DefaultCommandTemplates()
	_ = mergo.Merge(&templates, overrides, mergo.WithOverride)

	return &Inspector{
		shell:     NewShell(log),
		runtime:   runtimeBin,
		templates: templates,
		log:       log,
	}
}

type psLine struct {
	ID     string `json:"ID"`
	Names  string `json:"Names"`
	Image  string `json:"Image"`
	State  string `json:"State"`
	Status string `json:"Status"`
	Labels string `json:"Labels"`
}

// List shells out to `ps`, parses the JSON-lines output, and groups the
// result by project/service. A runtime that is absent or unreachable
// yields an empty inventory with Unavailable set rather than a fatal error.
func (i *Inspector) List(ctx context.Context) *Inventory {
	if !LookPath(i.runtime) {
		return &Inventory{Projects: map[string]*ProjectGroup{}, Unavailable: fmt.Errorf("runtime binary %q not found on PATH", i.runtime)}
	}

	cmd := utils.ApplyTemplate(i.templates.List, commandObject{
		Runtime:    i.runtime,
		JSONFormat: "'{{json .}}'",
	})
	cmd = cmd + " " + strings.Join(LabelFilterArgs(map[string]string{labelProject: ""}), " ")

	out, err := i.shell.Run(ctx, cmd)
	if err != nil {
		return &Inventory{Projects: map[string]*ProjectGroup{}, Unavailable: err}
	}

	records := make([]*ContainerRecord, 0)
	ids := make([]string, 0)
	for _, line := range utils.SplitLines(out) {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		var pl psLine
		if err := json.Unmarshal([]byte(line), &pl); err != nil {
			if i.log != nil {
				i.log.WithError(err).Debug("skipping unparsable ps line")
			}
			continue
		}
		rec := toRecord(pl)
		records = append(records, rec)
		ids = append(ids, rec.ID)
	}

	i.inspectBulk(ctx, ids, records)

	return &Inventory{Projects: group(records)}
}

type inspectLine struct {
	ID     string `json:"Id"`
	Config struct {
		Labels map[string]string `json:"Labels"`
	} `json:"Config"`
}

// inspectBulk runs a single `inspect` shell-out over every container id from
// the ps pass and backfills each record's project/service/workingDir/oneOff
// from the structured label map inspect returns. That map is authoritative
// where ps --format's flattened, comma-joined Labels string is fragile: a
// label value containing a comma corrupts parseLabels's naive split.
func (i *Inspector) inspectBulk(ctx context.Context, ids []string, records []*ContainerRecord) {
	if len(ids) == 0 {
		return
	}

	cmd := utils.ApplyTemplate(i.templates.Inspect, commandObject{
		Runtime:    i.runtime,
		JSONFormat: "'{{json .}}'",
		IDs:        strings.Join(ids, " "),
	})

	out, err := i.shell.Run(ctx, cmd)
	if err != nil {
		if i.log != nil {
			i.log.WithError(err).Debug("bulk inspect failed; keeping ps-derived labels")
		}
		return
	}

	byID := make(map[string]map[string]string, len(ids))
	for _, line := range utils.SplitLines(out) {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		var il inspectLine
		if err := json.Unmarshal([]byte(line), &il); err != nil {
			continue
		}
		byID[il.ID] = il.Config.Labels
	}

	for _, rec := range records {
		labels, ok := byID[rec.ID]
		if !ok {
			continue
		}
		rec.ProjectLabel = labels[labelProject]
		rec.ServiceLabel = labels[labelService]
		rec.WorkingDir = labels[labelWorkingDir]
		rec.OneOff = strings.EqualFold(labels[labelOneOff], "true")
	}
}

func toRecord(pl psLine) *ContainerRecord {
	labels := parseLabels(pl.Labels)

	rec := &ContainerRecord{
		ID:           pl.ID,
		ProjectLabel: labels[labelProject],
		ServiceLabel: labels[labelService],
		State:        normalizeState(pl.State),
		Status:       pl.Status,
		WorkingDir:   labels[labelWorkingDir],
		OneOff:       strings.EqualFold(labels[labelOneOff], "true"),
		Image:        normalizeImage(pl.Image),
	}
	rec.InstanceOrdinal = instanceOrdinal(pl.Names)
	return rec
}

func normalizeImage(image string) string {
	named, err := reference.ParseNormalizedNamed(image)
	if err != nil {
		return image
	}
	return reference.FamiliarString(named)
}

func normalizeState(s string) State {
	switch strings.ToLower(s) {
	case "running":
		return StateRunning
	case "exited":
		return StateExited
	case "restarting":
		return StateRestarting
	case "paused":
		return StatePaused
	case "created":
		return StateCreated
	default:
		return StateUnknown
	}
}

// instanceOrdinal extracts the trailing "-N" compose instance number from a
// container name such as "myproj-web-1"; containers without one are 1.
func instanceOrdinal(names string) int {
	name := strings.Split(names, ",")[0]
	idx := strings.LastIndex(name, "-")
	if idx < 0 {
		return 1
	}
	n, err := strconv.Atoi(name[idx+1:])
	if err != nil {
		return 1
	}
	return n
}

func parseLabels(raw string) map[string]string {
	out := map[string]string{}
	for _, pair := range strings.Split(raw, ",") {
		kv := strings.SplitN(pair, "=", 2)
		if len(kv) != 2 {
			continue
		}
		out[kv[0]] = kv[1]
	}
	return out
}

// group nests records into projects keyed by label and services keyed by
// name, and sorts each service's containers by id. Projects and services
// are maps, so their iteration order is not defined; SortedProjectLabels
// gives a stable project order.
func group(records []*ContainerRecord) map[string]*ProjectGroup {
	projects := map[string]*ProjectGroup{}

	for _, rec := range records {
		pg, ok := projects[rec.ProjectLabel]
		if !ok {
			pg = &ProjectGroup{Label: rec.ProjectLabel, WorkingDir: rec.WorkingDir, Services: map[string]*ServiceGroup{}}
			projects[rec.ProjectLabel] = pg
		}
		if pg.WorkingDir == "" {
			pg.WorkingDir = rec.WorkingDir
		}

		svc, ok := pg.Services[rec.ServiceLabel]
		if !ok {
			svc = &ServiceGroup{Name: rec.ServiceLabel}
			pg.Services[rec.ServiceLabel] = svc
		}
		svc.Containers = append(svc.Containers, rec)
	}

	for _, pg := range projects {
		for _, svc := range pg.Services {
			sort.Slice(svc.Containers, func(i, j int) bool { return svc.Containers[i].ID < svc.Containers[j].ID })
		}
	}

	return projects
}

// SortedProjectLabels returns the project labels of inv in sorted order,
// the iteration order every consumer of Inventory must use for determinism.
func SortedProjectLabels(inv *Inventory) []string {
	labels := make([]string, 0, len(inv.Projects))
	for l := range inv.Projects {
		labels = append(labels, l)
	}
	sort.Strings(labels)
	return labels
}

// LabelFilterArgs builds a docker/podman CLI filter-flag list from a set of
// label criteria, using filters.Args as the structured accumulator the
// teacher's API-client call sites use, flattened here into `--filter`
// arguments for a shelled-out command instead of an API request.
func LabelFilterArgs(labelCriteria map[string]string) []string {
	args := filters.NewArgs()
	for k, v := range labelCriteria {
		if v == "" {
			args.Add("label", k)
			continue
		}
		args.Add("label", fmt.Sprintf("%s=%s", k, v))
	}

	out := make([]string, 0, args.Len())
	for _, f := range args.Get("label") {
		out = append(out, "--filter", "label="+f)
	}
	return out
}
