// Package integration exercises the full API surface end to end: router,
// middleware, services and catalog, with in-memory stores standing in for
// Supabase and the mock LLM standing in for the real provider.
package integration_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/sertaodev/pnae-assistant-go/internal/catalog"
	chatdomain "github.com/sertaodev/pnae-assistant-go/internal/chat/domain"
	chathandler "github.com/sertaodev/pnae-assistant-go/internal/chat/handler"
	chatservice "github.com/sertaodev/pnae-assistant-go/internal/chat/service"
	"github.com/sertaodev/pnae-assistant-go/internal/domain"
	"github.com/sertaodev/pnae-assistant-go/internal/handler"
	"github.com/sertaodev/pnae-assistant-go/internal/infra/cache"
	"github.com/sertaodev/pnae-assistant-go/internal/infra/client"
	"github.com/sertaodev/pnae-assistant-go/internal/infra/jobs"
	"github.com/sertaodev/pnae-assistant-go/internal/infra/observability"
	"github.com/sertaodev/pnae-assistant-go/internal/service"

	"go.uber.org/zap"
)

// ============================================================
// In-memory backing store
// ============================================================

// memStore implements every storage port against maps, guarded by one mutex
// so background jobs can touch it concurrently with request handlers.
type memStore struct {
	mu sync.Mutex

	users         map[string]*domain.User
	nextUser      int
	profiles      map[string]*domain.ProducerProfile
	questions     map[string]domain.OnboardingQuestion
	answers       map[string]map[string]domain.OnboardingAnswer
	catalogTasks  map[domain.TaskCode]domain.TaskCatalogEntry
	tasks         map[string]map[domain.TaskCode]*domain.UserTask
	statuses      map[string]*domain.FormalizationStatus
	guides        map[string]*domain.FormalizationGuide
	conversations map[string]*chatdomain.Conversation
	messages      map[string][]chatdomain.Message
}

func newMemStore() *memStore {
	return &memStore{
		users:         map[string]*domain.User{},
		profiles:      map[string]*domain.ProducerProfile{},
		questions:     map[string]domain.OnboardingQuestion{},
		answers:       map[string]map[string]domain.OnboardingAnswer{},
		catalogTasks:  map[domain.TaskCode]domain.TaskCatalogEntry{},
		tasks:         map[string]map[domain.TaskCode]*domain.UserTask{},
		statuses:      map[string]*domain.FormalizationStatus{},
		guides:        map[string]*domain.FormalizationGuide{},
		conversations: map[string]*chatdomain.Conversation{},
		messages:      map[string][]chatdomain.Message{},
	}
}

// --- UserStore ---

func (m *memStore) GetUserByPhone(_ context.Context, phone string) (*domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[phone]
	if !ok {
		return nil, nil
	}
	copied := *u
	return &copied, nil
}

func (m *memStore) GetUserByID(_ context.Context, userID string) (*domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.ID == userID {
			copied := *u
			return &copied, nil
		}
	}
	return nil, nil
}

func (m *memStore) UpsertUser(_ context.Context, user *domain.User) (*domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	existing, ok := m.users[user.Phone]
	if !ok {
		m.nextUser++
		stored := *user
		stored.ID = fmt.Sprintf("user-%d", m.nextUser)
		m.users[user.Phone] = &stored
		copied := stored
		return &copied, nil
	}
	existing.OTPHash = user.OTPHash
	existing.OTPExpiresAt = user.OTPExpiresAt
	if user.Name != "" {
		existing.Name = user.Name
	}
	copied := *existing
	return &copied, nil
}

func (m *memStore) UpdateUser(_ context.Context, userID string, updates map[string]any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.ID != userID {
			continue
		}
		if v, ok := updates["otp_hash"]; ok {
			u.OTPHash, _ = v.(string)
		}
		if _, ok := updates["otp_expires_at"]; ok {
			u.OTPExpiresAt = nil
		}
		return nil
	}
	return &domain.ErrNotFound{Resource: "user", ID: userID}
}

// --- ProfileStore ---

func (m *memStore) GetProfile(_ context.Context, userID string) (*domain.ProducerProfile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.profiles[userID]
	if !ok {
		return nil, &domain.ErrNotFound{Resource: "profile", ID: userID}
	}
	copied := *p
	return &copied, nil
}

func (m *memStore) UpsertProfile(_ context.Context, profile *domain.ProducerProfile) (*domain.ProducerProfile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	stored := *profile
	m.profiles[profile.UserID] = &stored
	copied := stored
	return &copied, nil
}

func (m *memStore) UpdateProfileFields(_ context.Context, userID string, updates map[string]any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.profiles[userID]
	if !ok {
		return &domain.ErrNotFound{Resource: "profile", ID: userID}
	}
	for field, value := range updates {
		b, _ := value.(bool)
		s, _ := value.(string)
		switch field {
		case "has_cpf":
			p.HasCPF = b
		case "has_dap_caf":
			p.HasDAPCAF = b
		case "has_cnpj":
			p.HasCNPJ = b
		case "has_bank_account":
			p.HasBankAccount = b
		case "has_address_proof":
			p.HasAddressProof = b
		case "has_previous_sales":
			p.HasPreviousSales = b
		case "wants_to_sell_to_school":
			p.WantsToSellToSchool = b
		case "name":
			p.Name = s
		case "producer_type":
			p.ProducerType = domain.ProducerType(s)
		case "address":
			p.Address = s
		case "city":
			p.City = s
		case "state":
			p.State = s
		case "production_type":
			p.ProductionType = s
		case "production_capacity":
			p.ProductionCapacity = s
		}
	}
	return nil
}

// --- QuestionStore / AnswerStore ---

func (m *memStore) ListQuestions(_ context.Context) ([]domain.OnboardingQuestion, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]domain.OnboardingQuestion, 0, len(m.questions))
	for _, q := range m.questions {
		out = append(out, q)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].OrderIndex < out[j].OrderIndex })
	return out, nil
}

func (m *memStore) UpsertQuestion(_ context.Context, q *domain.OnboardingQuestion) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.questions[q.QuestionID] = *q
	return nil
}

func (m *memStore) ListAnswers(_ context.Context, userID string) ([]domain.OnboardingAnswer, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]domain.OnboardingAnswer, 0, len(m.answers[userID]))
	for _, a := range m.answers[userID] {
		out = append(out, a)
	}
	return out, nil
}

func (m *memStore) UpsertAnswer(_ context.Context, ans *domain.OnboardingAnswer) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.answers[ans.UserID] == nil {
		m.answers[ans.UserID] = map[string]domain.OnboardingAnswer{}
	}
	m.answers[ans.UserID][ans.QuestionID] = *ans
	return nil
}

// --- TaskCatalogStore / TaskStore ---

func (m *memStore) ListCatalog(_ context.Context) ([]domain.TaskCatalogEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]domain.TaskCatalogEntry, 0, len(m.catalogTasks))
	for _, e := range m.catalogTasks {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].OrderIndex < out[j].OrderIndex })
	return out, nil
}

func (m *memStore) UpsertCatalogEntry(_ context.Context, e *domain.TaskCatalogEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.catalogTasks[e.Code] = *e
	return nil
}

func (m *memStore) ListTasks(_ context.Context, userID string) ([]domain.UserTask, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]domain.UserTask, 0, len(m.tasks[userID]))
	for _, t := range m.tasks[userID] {
		out = append(out, *t)
	}
	// Catalog display order, like the real store's order_index sort.
	sort.Slice(out, func(i, j int) bool {
		return m.catalogTasks[out[i].TaskCode].OrderIndex < m.catalogTasks[out[j].TaskCode].OrderIndex
	})
	return out, nil
}

func (m *memStore) CreateTask(_ context.Context, task *domain.UserTask) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.tasks[task.UserID] == nil {
		m.tasks[task.UserID] = map[domain.TaskCode]*domain.UserTask{}
	}
	stored := *task
	m.tasks[task.UserID][task.TaskCode] = &stored
	return nil
}

func (m *memStore) UpdateTask(_ context.Context, userID string, code domain.TaskCode, updates map[string]any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	task, ok := m.tasks[userID][code]
	if !ok {
		return &domain.ErrNotFound{Resource: "task", ID: string(code)}
	}
	if v, ok := updates["status"]; ok {
		s, _ := v.(string)
		task.Status = domain.TaskStatus(s)
	}
	if v, ok := updates["requirement_id"]; ok {
		task.RequirementID, _ = v.(string)
	}
	return nil
}

// --- StatusStore ---

func (m *memStore) GetStatus(_ context.Context, userID string) (*domain.FormalizationStatus, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.statuses[userID]
	if !ok {
		return nil, nil
	}
	copied := *s
	return &copied, nil
}

func (m *memStore) UpsertStatus(_ context.Context, status *domain.FormalizationStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	stored := *status
	m.statuses[status.UserID] = &stored
	return nil
}

func (m *memStore) DeleteStatus(_ context.Context, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.statuses, userID)
	return nil
}

// --- GuideStore ---

func (m *memStore) GetGuide(_ context.Context, userID, requirementID string) (*domain.FormalizationGuide, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	g, ok := m.guides[userID+"/"+requirementID]
	if !ok {
		return nil, &domain.ErrNotFound{Resource: "guide", ID: requirementID}
	}
	copied := *g
	return &copied, nil
}

func (m *memStore) UpsertGuide(_ context.Context, guide *domain.FormalizationGuide) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	stored := *guide
	m.guides[guide.UserID+"/"+guide.RequirementID] = &stored
	return nil
}

// --- ConversationStore ---

func (m *memStore) GetConversation(_ context.Context, userID string) (*chatdomain.Conversation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.conversations[userID]
	if !ok {
		return nil, nil
	}
	copied := *c
	return &copied, nil
}

func (m *memStore) UpsertConversation(_ context.Context, conv *chatdomain.Conversation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	stored := *conv
	m.conversations[conv.UserID] = &stored
	return nil
}

func (m *memStore) AppendMessage(_ context.Context, msg *chatdomain.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.messages[msg.UserID] = append(m.messages[msg.UserID], *msg)
	return nil
}

func (m *memStore) ListMessages(_ context.Context, userID string, limit int) ([]chatdomain.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	msgs := m.messages[userID]
	if limit > 0 && len(msgs) > limit {
		msgs = msgs[len(msgs)-limit:]
	}
	return append([]chatdomain.Message(nil), msgs...), nil
}

// ============================================================
// API fixture
// ============================================================

type api struct {
	router http.Handler
	store  *memStore
}

func newAPI(t *testing.T) *api {
	t.Helper()
	logger := zap.NewNop()
	metrics := observability.NewMetrics()
	store := newMemStore()

	cat := catalog.New(
		store, store,
		cache.New[[]domain.OnboardingQuestion](time.Minute),
		cache.New[[]domain.TaskCatalogEntry](time.Minute),
		metrics, logger,
	)
	if err := cat.Seed(context.Background()); err != nil {
		t.Fatalf("seed catalog: %v", err)
	}

	queue := jobs.NewQueue(2, metrics, logger)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = queue.Shutdown(ctx)
	})

	generator := client.NewMockLLM()

	authSvc := service.NewAuthService(store, "integration-secret", time.Hour, 5*time.Minute, true, logger)
	producersSvc := service.NewProducerService(store, logger)
	onboardingSvc := service.NewOnboardingService(store, store, cat, logger)
	formalizationSvc := service.NewFormalizationService(store, store, store, store, cat, metrics, logger)
	guideSvc := service.NewGuideService(store, store, generator, queue, metrics, logger)
	formalizationSvc.SetPregenerator(guideSvc)
	chatSvc := chatservice.NewChatService(store, formalizationSvc, generator, logger)

	router := handler.NewRouter(handler.Deps{
		Auth:          authSvc,
		Producers:     producersSvc,
		Onboarding:    onboardingSvc,
		Formalization: formalizationSvc,
		Guides:        guideSvc,
		Catalog:       cat,
		Jobs:          queue,
		ChatMessage:   chathandler.MessageHandler(chatSvc, logger),
		ChatMessageV2: chathandler.MessageV2Handler(chatSvc, logger),
		Metrics:       metrics,
		Logger:        logger,
	})

	return &api{router: router, store: store}
}

func (a *api) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatal(err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	a.router.ServeHTTP(rec, req)
	return rec
}

func (a *api) mustJSON(t *testing.T, rec *httptest.ResponseRecorder, wantStatus int, out any) {
	t.Helper()
	if rec.Code != wantStatus {
		t.Fatalf("status %d, want %d. body: %s", rec.Code, wantStatus, rec.Body.String())
	}
	if out != nil {
		if err := json.Unmarshal(rec.Body.Bytes(), out); err != nil {
			t.Fatalf("decode response: %v. body: %s", err, rec.Body.String())
		}
	}
}

func (a *api) login(t *testing.T, phone string) string {
	t.Helper()

	var start domain.StartLoginResponse
	a.mustJSON(t, a.do(t, http.MethodPost, "/v1/auth/start", "", domain.StartLoginRequest{Phone: phone}), http.StatusOK, &start)
	if start.DevCode == "" {
		t.Fatal("dev mode must return the code")
	}

	var verify domain.VerifyOTPResponse
	a.mustJSON(t, a.do(t, http.MethodPost, "/v1/auth/verify", "", domain.VerifyOTPRequest{Phone: phone, Code: start.DevCode}), http.StatusOK, &verify)
	if verify.AccessToken == "" {
		t.Fatal("expected an access token")
	}
	return verify.AccessToken
}

// ============================================================
// End-to-end flow
// ============================================================

// TestFullProducerJourney walks a producer from first login to an eligible
// diagnosis: login, profile, onboarding answers, diagnosis, task completion,
// guided chat and a generated guide.
func TestFullProducerJourney(t *testing.T) {
	a := newAPI(t)
	token := a.login(t, "+5587991234567")

	// Profile.
	var profile domain.ProducerProfile
	a.mustJSON(t, a.do(t, http.MethodPut, "/v1/producers/profile", token, domain.UpsertProfileRequest{
		Name:         "Maria da Silva",
		ProducerType: "Individual",
		City:         "Petrolina",
		State:        "PE",
		MainProducts: []string{"tomate", "alface"},
	}), http.StatusOK, &profile)
	if !profile.HasCPF {
		t.Error("a submitted profile implies a CPF")
	}

	// Onboarding answers: has CAF and a bank account, wants to sell.
	answers := []domain.SaveAnswerRequest{
		{QuestionID: "has_dap_caf", Value: "sim"},
		{QuestionID: "has_bank_account", Value: true},
		{QuestionID: "wants_to_sell_to_school", Value: true},
	}
	for _, ans := range answers {
		a.mustJSON(t, a.do(t, http.MethodPost, "/v1/onboarding/answers", token, ans), http.StatusCreated, nil)
	}

	// Diagnosis: CPF + CAF + bank account crosses the eligibility line.
	var status domain.FormalizationStatus
	a.mustJSON(t, a.do(t, http.MethodGet, "/v1/formalization/status", token, nil), http.StatusOK, &status)
	if !status.IsEligible || status.EligibilityLevel != domain.Eligible {
		t.Fatalf("expected an eligible diagnosis, got %+v", status)
	}
	if status.Score != 0 {
		t.Errorf("no task is done yet, progress should be 0, got %d", status.Score)
	}

	// Tasks: address proof plus the two sales deliverables.
	var taskList struct {
		Tasks []domain.UserTask `json:"tasks"`
	}
	a.mustJSON(t, a.do(t, http.MethodGet, "/v1/formalization/tasks", token, nil), http.StatusOK, &taskList)
	if len(taskList.Tasks) != 3 {
		t.Fatalf("expected 3 tasks, got %d: %+v", len(taskList.Tasks), taskList.Tasks)
	}
	byCode := map[domain.TaskCode]domain.UserTask{}
	for _, task := range taskList.Tasks {
		byCode[task.TaskCode] = task
	}
	for _, code := range []domain.TaskCode{
		domain.TaskHasAddressProof,
		domain.TaskSalesProjectReady,
		domain.TaskPublicCallSubmissionReady,
	} {
		if task, ok := byCode[code]; !ok || task.Status != domain.TaskPending {
			t.Errorf("expected pending task %s, got %+v", code, task)
		}
	}

	// Completing the address task flips the profile flag.
	var updated domain.UserTask
	a.mustJSON(t, a.do(t, http.MethodPatch, "/v1/formalization/tasks/HAS_ADDRESS_PROOF", token,
		domain.UpdateTaskStatusRequest{Status: "done"}), http.StatusOK, &updated)
	if updated.Status != domain.TaskDone {
		t.Errorf("expected done, got %s", updated.Status)
	}

	a.mustJSON(t, a.do(t, http.MethodGet, "/v1/producers/profile", token, nil), http.StatusOK, &profile)
	if !profile.HasAddressProof {
		t.Error("completing the address task must set the profile flag")
	}

	a.mustJSON(t, a.do(t, http.MethodGet, "/v1/formalization/status", token, nil), http.StatusOK, &status)
	if status.Score != 33 {
		t.Errorf("1 of 3 tasks done, expected progress 33, got %d", status.Score)
	}

	// Explicit resync keeps the completed task sticky.
	a.mustJSON(t, a.do(t, http.MethodPost, "/v1/formalization/tasks/regenerate", token, nil), http.StatusOK, &taskList)
	for _, task := range taskList.Tasks {
		if task.TaskCode == domain.TaskHasAddressProof && task.Status != domain.TaskDone {
			t.Errorf("regenerate must not reset a done task, got %s", task.Status)
		}
	}

	// Guided chat points at the next pending task.
	var chat chatdomain.MessageResponse
	a.mustJSON(t, a.do(t, http.MethodPost, "/v1/ai/chat/message/v2", token,
		chatdomain.MessageRequest{Message: "o que falta?"}), http.StatusOK, &chat)
	if chat.ConversationState == nil || chat.ConversationState.ChatState != chatdomain.StateExplainingTask {
		t.Errorf("expected explaining_task, got %+v", chat.ConversationState)
	}
	if chat.ConversationState != nil && chat.ConversationState.CurrentTaskCode != domain.TaskSalesProjectReady {
		t.Errorf("expected focus on the sales project, got %s", chat.ConversationState.CurrentTaskCode)
	}
	var markDone int
	for _, action := range chat.SuggestedActions {
		if action.Type == chatdomain.ActionMarkTaskDone {
			markDone++
			if action.TaskCode != domain.TaskSalesProjectReady {
				t.Errorf("mark_task_done must carry the focused task code, got %s", action.TaskCode)
			}
		}
	}
	if markDone != 1 {
		t.Errorf("expected exactly one mark_task_done action, got %d", markDone)
	}

	// Guide generation through the mock LLM.
	var guide domain.FormalizationGuide
	a.mustJSON(t, a.do(t, http.MethodPost, "/v1/ai/guides", token,
		domain.GenerateGuideRequest{RequirementID: "dap_caf"}), http.StatusOK, &guide)
	if guide.Fallback {
		t.Error("the mock provider returns valid JSON, no fallback expected")
	}
	if len(guide.Steps) == 0 {
		t.Error("expected guide steps")
	}
}

func TestOnboardingProgress(t *testing.T) {
	a := newAPI(t)
	token := a.login(t, "+5587999887766")

	var questions struct {
		Questions []domain.OnboardingQuestion `json:"questions"`
	}
	a.mustJSON(t, a.do(t, http.MethodGet, "/v1/onboarding/questions", token, nil), http.StatusOK, &questions)
	if len(questions.Questions) == 0 {
		t.Fatal("expected seeded questions")
	}

	a.mustJSON(t, a.do(t, http.MethodPost, "/v1/onboarding/answers", token,
		domain.SaveAnswerRequest{QuestionID: "name", Value: "José Pereira"}), http.StatusCreated, nil)

	var status domain.OnboardingStatus
	a.mustJSON(t, a.do(t, http.MethodGet, "/v1/onboarding/status", token, nil), http.StatusOK, &status)
	if status.Answered != 1 {
		t.Errorf("expected 1 answered question, got %d", status.Answered)
	}
	if status.Complete {
		t.Error("one answer cannot complete onboarding")
	}
}

func TestFreeChatFallsBackWithoutBreaking(t *testing.T) {
	a := newAPI(t)
	token := a.login(t, "+5587991112233")

	var resp chatdomain.MessageResponse
	a.mustJSON(t, a.do(t, http.MethodPost, "/v1/ai/chat/message", token,
		chatdomain.MessageRequest{Message: "como emitir a CAF?"}), http.StatusOK, &resp)
	if resp.Reply == "" {
		t.Error("expected a reply")
	}
}

func TestAdminReseedAndUsage(t *testing.T) {
	a := newAPI(t)
	token := a.login(t, "+5587994445566")

	a.mustJSON(t, a.do(t, http.MethodPost, "/v1/admin/catalog/reseed", token, nil), http.StatusOK, nil)

	var usage observability.UsageSnapshot
	a.mustJSON(t, a.do(t, http.MethodGet, "/v1/admin/metrics/usage", token, nil), http.StatusOK, &usage)
	if usage.CacheHitRate < 0 || usage.CacheHitRate > 1 {
		t.Errorf("hit rate out of range: %f", usage.CacheHitRate)
	}
}
