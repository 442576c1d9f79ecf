package controllers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/MOE349/tenmil-backend-sub001/cronjobs"
	"github.com/MOE349/tenmil-backend-sub001/models"
	"github.com/MOE349/tenmil-backend-sub001/scheduler"
	"github.com/MOE349/tenmil-backend-sub001/services"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// fakeService keeps plans and schedules in memory
type fakeService struct {
	plans     map[uint]*models.SavingPlan
	schedules map[uint]*models.SavingPlanCronJob
	runErr    error
	nextID    uint
	runsLimit int
}

func newFakeService() *fakeService {
	return &fakeService{
		plans:     map[uint]*models.SavingPlan{},
		schedules: map[uint]*models.SavingPlanCronJob{},
		nextID:    1,
	}
}

func (f *fakeService) CreatePlan(_ context.Context, in services.CreateSavingPlanInput) (*models.SavingPlan, error) {
	if in.Trigger != nil {
		if err := in.Trigger.Validate(); err != nil {
			return nil, err
		}
	}
	p := &models.SavingPlan{ID: f.nextID, Name: in.Name, IsActive: true}
	f.plans[p.ID] = p
	f.nextID++
	return p, nil
}

func (f *fakeService) GetPlan(_ context.Context, id uint) (*models.SavingPlan, error) {
	p, ok := f.plans[id]
	if !ok {
		return nil, fmt.Errorf("%w: %d", services.ErrPlanNotFound, id)
	}
	return p, nil
}

func (f *fakeService) ListPlans(context.Context) ([]models.SavingPlan, error) {
	out := []models.SavingPlan{}
	for _, p := range f.plans {
		out = append(out, *p)
	}
	return out, nil
}

func (f *fakeService) DeletePlan(ctx context.Context, id uint) error {
	if _, err := f.GetPlan(ctx, id); err != nil {
		return err
	}
	delete(f.plans, id)
	delete(f.schedules, id)
	return nil
}

func (f *fakeService) GetSchedule(ctx context.Context, id uint) (*models.SavingPlanCronJob, error) {
	if _, err := f.GetPlan(ctx, id); err != nil {
		return nil, err
	}
	rec, ok := f.schedules[id]
	if !ok {
		return nil, cronjobs.ErrNotFound
	}
	return rec, nil
}

func (f *fakeService) Schedule(ctx context.Context, id uint, trigger models.Trigger) (*models.SavingPlanCronJob, error) {
	if _, err := f.GetPlan(ctx, id); err != nil {
		return nil, err
	}
	if err := trigger.Validate(); err != nil {
		return nil, err
	}
	if _, ok := f.schedules[id]; ok {
		return nil, cronjobs.ErrAlreadyScheduled
	}
	rec := &models.SavingPlanCronJob{}
	rec.ID = id
	rec.TriggerType = trigger.Type
	rec.TriggerArgs = trigger.Args
	rec.IsActive = true
	f.schedules[id] = rec
	return rec, nil
}

func (f *fakeService) Unschedule(ctx context.Context, id uint) error {
	if _, err := f.GetSchedule(ctx, id); err != nil {
		return err
	}
	delete(f.schedules, id)
	return nil
}

func (f *fakeService) SetScheduleActive(ctx context.Context, id uint, active bool) (*models.SavingPlanCronJob, error) {
	rec, err := f.GetSchedule(ctx, id)
	if err != nil {
		return nil, err
	}
	rec.IsActive = active
	return rec, nil
}

func (f *fakeService) RunNow(ctx context.Context, id uint) error {
	if _, err := f.GetSchedule(ctx, id); err != nil {
		return err
	}
	return f.runErr
}

func (f *fakeService) Runs(ctx context.Context, id uint, limit int) ([]models.CronJobRunLog, error) {
	if _, err := f.GetPlan(ctx, id); err != nil {
		return nil, err
	}
	f.runsLimit = limit
	return []models.CronJobRunLog{{JobKey: models.JobKey(id), Status: models.RunStatusOK}}, nil
}

func (f *fakeService) NextRun(rec *models.SavingPlanCronJob) (time.Time, bool) {
	if !rec.IsActive {
		return time.Time{}, false
	}
	return rec.Trigger().NextRun(time.Now())
}

func setupRouter(svc SavingPlanService) *gin.Engine {
	pc := NewSavingPlanController(svc)
	r := gin.New()
	g := r.Group("/saving-plans")
	g.GET("", pc.ListPlans)
	g.POST("", pc.CreatePlan)
	g.GET("/:id", pc.GetPlan)
	g.DELETE("/:id", pc.DeletePlan)
	g.GET("/:id/schedule", pc.GetSchedule)
	g.POST("/:id/schedule", pc.CreateSchedule)
	g.PATCH("/:id/schedule", pc.UpdateSchedule)
	g.DELETE("/:id/schedule", pc.DeleteSchedule)
	g.POST("/:id/run", pc.RunPlan)
	g.GET("/:id/runs", pc.ListRuns)
	return r
}

func doRequest(r *gin.Engine, method, path string, body interface{}) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestSavingPlanController_Lifecycle(t *testing.T) {
	svc := newFakeService()
	r := setupRouter(svc)

	w := doRequest(r, http.MethodPost, "/saving-plans", map[string]interface{}{
		"name":               "laptop",
		"installment_amount": "100",
		"target_amount":      "1000",
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("create plan: %d %s", w.Code, w.Body.String())
	}

	trigger := map[string]interface{}{
		"trigger_type": "interval",
		"trigger_args": map[string]interface{}{"days": 7},
	}
	if w := doRequest(r, http.MethodPost, "/saving-plans/1/schedule", trigger); w.Code != http.StatusCreated {
		t.Fatalf("schedule: %d %s", w.Code, w.Body.String())
	}
	if w := doRequest(r, http.MethodPost, "/saving-plans/1/schedule", trigger); w.Code != http.StatusConflict {
		t.Errorf("expected 409 on duplicate schedule, got %d", w.Code)
	}

	w = doRequest(r, http.MethodGet, "/saving-plans/1/schedule", nil)
	var got struct {
		Data ScheduleResponse `json:"data"`
	}
	_ = json.Unmarshal(w.Body.Bytes(), &got)
	if got.Data.Key != "1" || !got.Data.IsActive {
		t.Errorf("unexpected schedule: %+v", got.Data)
	}
	if got.Data.NextRun == nil || got.Data.NextRun.Before(time.Now().Add(6*24*time.Hour)) {
		t.Errorf("expected next run about a week ahead, got %v", got.Data.NextRun)
	}

	if w := doRequest(r, http.MethodPatch, "/saving-plans/1/schedule", map[string]bool{"is_active": false}); w.Code != http.StatusOK {
		t.Errorf("pause: %d %s", w.Code, w.Body.String())
	}
	if svc.schedules[1].IsActive {
		t.Error("expected schedule to be paused")
	}

	if w := doRequest(r, http.MethodPost, "/saving-plans/1/run", nil); w.Code != http.StatusOK {
		t.Errorf("run: %d %s", w.Code, w.Body.String())
	}
	for query, want := range map[string]int{"?limit=5": 5, "?limit=100000": maxRunsLimit, "?limit=-3": 20, "": 20} {
		if w := doRequest(r, http.MethodGet, "/saving-plans/1/runs"+query, nil); w.Code != http.StatusOK {
			t.Errorf("runs%s: %d", query, w.Code)
		}
		if svc.runsLimit != want {
			t.Errorf("runs%s: expected limit %d, got %d", query, want, svc.runsLimit)
		}
	}

	if w := doRequest(r, http.MethodDelete, "/saving-plans/1/schedule", nil); w.Code != http.StatusOK {
		t.Errorf("unschedule: %d", w.Code)
	}
	if w := doRequest(r, http.MethodDelete, "/saving-plans/1/schedule", nil); w.Code != http.StatusNotFound {
		t.Errorf("expected 404 on second unschedule, got %d", w.Code)
	}

	if w := doRequest(r, http.MethodDelete, "/saving-plans/1", nil); w.Code != http.StatusOK {
		t.Errorf("delete plan: %d", w.Code)
	}
	if w := doRequest(r, http.MethodGet, "/saving-plans/1", nil); w.Code != http.StatusNotFound {
		t.Errorf("expected 404 after delete, got %d", w.Code)
	}
}

func TestSavingPlanController_Errors(t *testing.T) {
	svc := newFakeService()
	r := setupRouter(svc)
	_, _ = svc.CreatePlan(context.Background(), services.CreateSavingPlanInput{Name: "x"})

	tests := []struct {
		name   string
		method string
		path   string
		body   interface{}
		want   int
	}{
		{"bad id", http.MethodGet, "/saving-plans/abc", nil, http.StatusBadRequest},
		{"zero id", http.MethodGet, "/saving-plans/0", nil, http.StatusBadRequest},
		{"missing plan", http.MethodGet, "/saving-plans/99", nil, http.StatusNotFound},
		{"missing name", http.MethodPost, "/saving-plans", map[string]string{}, http.StatusBadRequest},
		{"bad trigger", http.MethodPost, "/saving-plans/1/schedule", map[string]interface{}{
			"trigger_type": "cron", "trigger_args": map[string]string{"expression": "nope"},
		}, http.StatusBadRequest},
		{"missing trigger type", http.MethodPost, "/saving-plans/1/schedule", map[string]interface{}{}, http.StatusBadRequest},
		{"patch without flag", http.MethodPatch, "/saving-plans/1/schedule", map[string]interface{}{}, http.StatusBadRequest},
		{"run without schedule", http.MethodPost, "/saving-plans/1/run", nil, http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if w := doRequest(r, tt.method, tt.path, tt.body); w.Code != tt.want {
				t.Errorf("got %d, want %d: %s", w.Code, tt.want, w.Body.String())
			}
		})
	}
}

func TestSavingPlanController_RunLocked(t *testing.T) {
	svc := newFakeService()
	r := setupRouter(svc)
	_, _ = svc.CreatePlan(context.Background(), services.CreateSavingPlanInput{Name: "x"})
	_, _ = svc.Schedule(context.Background(), 1, models.Trigger{Type: models.TriggerInterval, Args: models.TriggerArgs{"hours": 1}})
	svc.runErr = cronjobs.ErrLocked

	if w := doRequest(r, http.MethodPost, "/saving-plans/1/run", nil); w.Code != http.StatusConflict {
		t.Errorf("expected 409, got %d", w.Code)
	}
}

type fakeJobs struct{ jobs []scheduler.JobInfo }

func (f fakeJobs) Jobs() []scheduler.JobInfo { return f.jobs }
func (f fakeJobs) IsRunning() bool           { return true }

func TestSchedulerController_ListJobs(t *testing.T) {
	sc := NewSchedulerController(fakeJobs{jobs: []scheduler.JobInfo{
		{Key: "1", NextRun: time.Now().Add(time.Hour)},
	}}, http.NotFoundHandler())
	r := gin.New()
	r.GET("/jobs", sc.ListJobs)

	w := doRequest(r, http.MethodGet, "/jobs", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var resp struct {
		Running bool                `json:"running"`
		Count   int                 `json:"count"`
		Data    []scheduler.JobInfo `json:"data"`
	}
	_ = json.Unmarshal(w.Body.Bytes(), &resp)
	if !resp.Running || resp.Count != 1 || resp.Data[0].Key != "1" {
		t.Errorf("unexpected response: %+v", resp)
	}
}
