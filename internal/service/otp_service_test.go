package service

import (
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/mailotp/internal/config"
	"github.com/mailotp/internal/models"
	"github.com/mailotp/internal/repository"

	"github.com/glebarez/sqlite"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

type fakeNotifier struct {
	mu       sync.Mutex
	sent     []string
	lastCode string
	failErr  error
}

func (f *fakeNotifier) SendOtpCode(toEmail, code string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failErr != nil {
		return f.failErr
	}
	f.sent = append(f.sent, toEmail)
	f.lastCode = code
	return nil
}

func (f *fakeNotifier) LastCode() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lastCode
}

func (f *fakeNotifier) SentCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sent)
}

func newOtpTestConfig() *config.Config {
	return &config.Config{
		Otp: config.OtpConfig{
			TTLSeconds:      600,
			CooldownSeconds: 60,
			MaxAttempts:     5,
			LockSeconds:     300,
			Length:          6,
			BcryptCost:      bcrypt.MinCost,
		},
	}
}

func setupOtpServiceTest(t *testing.T) (*OtpService, *fakeNotifier, *gorm.DB) {
	t.Helper()
	dsn := fmt.Sprintf("file:otp_service_test_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite failed: %v", err)
	}
	if err := db.AutoMigrate(&models.OtpRecord{}); err != nil {
		t.Fatalf("migrate otp_records failed: %v", err)
	}
	notifier := &fakeNotifier{}
	svc := NewOtpService(newOtpTestConfig(), repository.NewOtpRecordRepository(db), notifier, nil)
	return svc, notifier, db
}

func rewindIssuedAt(t *testing.T, db *gorm.DB, email string, issuedAt time.Time) {
	t.Helper()
	if err := db.Model(&models.OtpRecord{}).
		Where("email = ?", email).
		UpdateColumn("created_at", issuedAt).Error; err != nil {
		t.Fatalf("rewind created_at failed: %v", err)
	}
}

func loadRecord(t *testing.T, db *gorm.DB, email string) *models.OtpRecord {
	t.Helper()
	var record models.OtpRecord
	err := db.Where("email = ?", email).First(&record).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil
	}
	if err != nil {
		t.Fatalf("load record failed: %v", err)
	}
	return &record
}

func TestRequestCodeIssuesHashedRecord(t *testing.T) {
	svc, notifier, db := setupOtpServiceTest(t)

	if err := svc.RequestCode("A@X.com"); err != nil {
		t.Fatalf("request code failed: %v", err)
	}
	if notifier.SentCount() != 1 {
		t.Fatalf("sent count want 1 got %d", notifier.SentCount())
	}
	code := notifier.LastCode()
	if len(code) != 6 {
		t.Fatalf("code length want 6 got %d (%s)", len(code), code)
	}

	record := loadRecord(t, db, "a@x.com")
	if record == nil {
		t.Fatalf("record should exist after request")
	}
	if record.CodeHash == code {
		t.Fatalf("code must not be stored in plaintext")
	}
	if bcrypt.CompareHashAndPassword([]byte(record.CodeHash), []byte(code)) != nil {
		t.Fatalf("stored hash should match issued code")
	}
	if record.Attempts != 0 {
		t.Fatalf("attempts want 0 got %d", record.Attempts)
	}
	if record.LockUntil != nil {
		t.Fatalf("fresh record should not be locked")
	}
}

func TestRequestCodeRejectsInvalidEmail(t *testing.T) {
	svc, notifier, _ := setupOtpServiceTest(t)

	for _, email := range []string{"", "   ", "not-an-email", "a b@x.com"} {
		if err := svc.RequestCode(email); !errors.Is(err, ErrInvalidEmail) {
			t.Fatalf("email %q want ErrInvalidEmail got %v", email, err)
		}
	}
	if notifier.SentCount() != 0 {
		t.Fatalf("no email should be sent for invalid addresses")
	}
}

func TestRequestCodeCooldownKeepsRecordUntouched(t *testing.T) {
	svc, notifier, db := setupOtpServiceTest(t)

	if err := svc.RequestCode("a@x.com"); err != nil {
		t.Fatalf("request code failed: %v", err)
	}
	before := loadRecord(t, db, "a@x.com")

	if err := svc.RequestCode("a@x.com"); !errors.Is(err, ErrRequestTooFrequent) {
		t.Fatalf("cooldown request want ErrRequestTooFrequent got %v", err)
	}
	if notifier.SentCount() != 1 {
		t.Fatalf("cooldown request must not send email, sent %d", notifier.SentCount())
	}

	after := loadRecord(t, db, "a@x.com")
	if after.CodeHash != before.CodeHash {
		t.Fatalf("cooldown request must not replace the code")
	}
	if !after.CreatedAt.Equal(before.CreatedAt) {
		t.Fatalf("cooldown request must not touch created_at")
	}
}

func TestRequestCodeAfterCooldownReplacesRecord(t *testing.T) {
	svc, notifier, db := setupOtpServiceTest(t)

	if err := svc.RequestCode("a@x.com"); err != nil {
		t.Fatalf("request code failed: %v", err)
	}
	firstCode := notifier.LastCode()
	rewindIssuedAt(t, db, "a@x.com", time.Now().Add(-2*time.Minute))

	if err := svc.RequestCode("a@x.com"); err != nil {
		t.Fatalf("request after cooldown failed: %v", err)
	}
	if notifier.SentCount() != 2 {
		t.Fatalf("sent count want 2 got %d", notifier.SentCount())
	}

	// 旧验证码随替换失效
	if err := svc.SubmitCode("a@x.com", firstCode); err == nil {
		t.Fatalf("old code should be invalid after reissue")
	}
	if err := svc.SubmitCode("a@x.com", notifier.LastCode()); err != nil {
		t.Fatalf("new code should verify: %v", err)
	}
}

func TestSubmitCodeSuccessConsumesRecord(t *testing.T) {
	svc, notifier, db := setupOtpServiceTest(t)

	if err := svc.RequestCode("a@x.com"); err != nil {
		t.Fatalf("request code failed: %v", err)
	}
	if err := svc.SubmitCode("a@x.com", notifier.LastCode()); err != nil {
		t.Fatalf("submit correct code failed: %v", err)
	}
	if record := loadRecord(t, db, "a@x.com"); record != nil {
		t.Fatalf("record should be consumed after success")
	}
	if err := svc.SubmitCode("a@x.com", notifier.LastCode()); !errors.Is(err, ErrCodeNotFound) {
		t.Fatalf("second submit want ErrCodeNotFound got %v", err)
	}
}

func TestSubmitCodeWithoutRequest(t *testing.T) {
	svc, _, _ := setupOtpServiceTest(t)

	if err := svc.SubmitCode("a@x.com", "123456"); !errors.Is(err, ErrCodeNotFound) {
		t.Fatalf("want ErrCodeNotFound got %v", err)
	}
}

func TestSubmitCodeWrongAttemptsThenLock(t *testing.T) {
	svc, notifier, db := setupOtpServiceTest(t)

	if err := svc.RequestCode("a@x.com"); err != nil {
		t.Fatalf("request code failed: %v", err)
	}

	for want := 4; want >= 1; want-- {
		err := svc.SubmitCode("a@x.com", "000000")
		var invalidErr *CodeInvalidError
		if !errors.As(err, &invalidErr) {
			t.Fatalf("want CodeInvalidError got %v", err)
		}
		if !errors.Is(err, ErrCodeInvalid) {
			t.Fatalf("CodeInvalidError should unwrap to ErrCodeInvalid")
		}
		if invalidErr.AttemptsRemaining != want {
			t.Fatalf("attempts remaining want %d got %d", want, invalidErr.AttemptsRemaining)
		}
	}

	if err := svc.SubmitCode("a@x.com", "000000"); !errors.Is(err, ErrCodeLocked) {
		t.Fatalf("fifth wrong submit want ErrCodeLocked got %v", err)
	}

	record := loadRecord(t, db, "a@x.com")
	if record == nil || record.LockUntil == nil {
		t.Fatalf("record should be locked")
	}

	// 锁定期间连正确验证码也被拒绝，且不再累计次数
	if err := svc.SubmitCode("a@x.com", notifier.LastCode()); !errors.Is(err, ErrCodeLocked) {
		t.Fatalf("locked submit want ErrCodeLocked got %v", err)
	}
	after := loadRecord(t, db, "a@x.com")
	if after.Attempts != record.Attempts {
		t.Fatalf("locked submits must not increment attempts: %d -> %d", record.Attempts, after.Attempts)
	}
}

func TestRequestCodeSupersedesLock(t *testing.T) {
	svc, notifier, db := setupOtpServiceTest(t)

	if err := svc.RequestCode("a@x.com"); err != nil {
		t.Fatalf("request code failed: %v", err)
	}
	for i := 0; i < 5; i++ {
		_ = svc.SubmitCode("a@x.com", "000000")
	}
	if err := svc.SubmitCode("a@x.com", notifier.LastCode()); !errors.Is(err, ErrCodeLocked) {
		t.Fatalf("record should be locked before reissue")
	}

	rewindIssuedAt(t, db, "a@x.com", time.Now().Add(-2*time.Minute))
	if err := svc.RequestCode("a@x.com"); err != nil {
		t.Fatalf("reissue over locked record failed: %v", err)
	}

	record := loadRecord(t, db, "a@x.com")
	if record.Attempts != 0 {
		t.Fatalf("reissue should reset attempts, got %d", record.Attempts)
	}
	if record.LockUntil != nil {
		t.Fatalf("reissue should clear lock")
	}
	if err := svc.SubmitCode("a@x.com", notifier.LastCode()); err != nil {
		t.Fatalf("new code should verify after reissue: %v", err)
	}
}

func TestSubmitCodeExpiredRecord(t *testing.T) {
	svc, notifier, db := setupOtpServiceTest(t)

	if err := svc.RequestCode("a@x.com"); err != nil {
		t.Fatalf("request code failed: %v", err)
	}
	rewindIssuedAt(t, db, "a@x.com", time.Now().Add(-11*time.Minute))

	if err := svc.SubmitCode("a@x.com", notifier.LastCode()); !errors.Is(err, ErrCodeNotFound) {
		t.Fatalf("expired submit want ErrCodeNotFound got %v", err)
	}
	if record := loadRecord(t, db, "a@x.com"); record != nil {
		t.Fatalf("expired record should be deleted on read")
	}
}

func TestRequestCodeAfterExpiryBypassesCooldown(t *testing.T) {
	svc, notifier, db := setupOtpServiceTest(t)

	if err := svc.RequestCode("a@x.com"); err != nil {
		t.Fatalf("request code failed: %v", err)
	}
	rewindIssuedAt(t, db, "a@x.com", time.Now().Add(-11*time.Minute))

	if err := svc.RequestCode("a@x.com"); err != nil {
		t.Fatalf("request after expiry failed: %v", err)
	}
	if notifier.SentCount() != 2 {
		t.Fatalf("sent count want 2 got %d", notifier.SentCount())
	}
}

func TestSubmitCodeParallelWrongAttemptsAllCounted(t *testing.T) {
	svc, _, db := setupOtpServiceTest(t)

	if err := svc.RequestCode("a@x.com"); err != nil {
		t.Fatalf("request code failed: %v", err)
	}

	const parallel = 4
	var wg sync.WaitGroup
	wg.Add(parallel)
	for i := 0; i < parallel; i++ {
		go func() {
			defer wg.Done()
			_ = svc.SubmitCode("a@x.com", "000000")
		}()
	}
	wg.Wait()

	record := loadRecord(t, db, "a@x.com")
	if record == nil {
		t.Fatalf("record should survive wrong submits")
	}
	if record.Attempts != parallel {
		t.Fatalf("attempts want %d got %d", parallel, record.Attempts)
	}
}

func TestRequestCodeNotifierFailureKeepsRecord(t *testing.T) {
	svc, notifier, db := setupOtpServiceTest(t)
	notifier.failErr = errors.New("smtp unreachable")

	err := svc.RequestCode("a@x.com")
	if err == nil {
		t.Fatalf("request should surface notifier failure")
	}
	if record := loadRecord(t, db, "a@x.com"); record == nil {
		t.Fatalf("record is persisted before dispatch and should remain")
	}
}

func TestExpireIssuedBeforeIgnoresNewerRecord(t *testing.T) {
	svc, _, db := setupOtpServiceTest(t)

	if err := svc.RequestCode("a@x.com"); err != nil {
		t.Fatalf("request code failed: %v", err)
	}
	record := loadRecord(t, db, "a@x.com")

	if err := svc.ExpireIssuedBefore("a@x.com", record.CreatedAt.Add(-time.Second)); err != nil {
		t.Fatalf("stale expire failed: %v", err)
	}
	if loadRecord(t, db, "a@x.com") == nil {
		t.Fatalf("newer record should survive stale expire task")
	}

	if err := svc.ExpireIssuedBefore("a@x.com", record.CreatedAt); err != nil {
		t.Fatalf("expire failed: %v", err)
	}
	if loadRecord(t, db, "a@x.com") != nil {
		t.Fatalf("record should be removed by expire task")
	}
}

func TestPurgeExpiredSweepsOldRecords(t *testing.T) {
	svc, _, db := setupOtpServiceTest(t)

	if err := svc.RequestCode("old@x.com"); err != nil {
		t.Fatalf("request code failed: %v", err)
	}
	if err := svc.RequestCode("fresh@x.com"); err != nil {
		t.Fatalf("request code failed: %v", err)
	}
	rewindIssuedAt(t, db, "old@x.com", time.Now().Add(-20*time.Minute))

	purged, err := svc.PurgeExpired(time.Now())
	if err != nil {
		t.Fatalf("purge failed: %v", err)
	}
	if purged != 1 {
		t.Fatalf("purged want 1 got %d", purged)
	}
	if loadRecord(t, db, "old@x.com") != nil {
		t.Fatalf("old record should be purged")
	}
	if loadRecord(t, db, "fresh@x.com") == nil {
		t.Fatalf("fresh record should survive purge")
	}
}
