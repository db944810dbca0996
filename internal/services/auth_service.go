package services

import (
	"context"
	cryptorand "crypto/rand"
	"database/sql"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/go-redis/redis/v8"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/spf13/viper"
	"golang.org/x/crypto/argon2"

	"github.com/PotenzaFelip/ApiFinanceira/internal/models"
)

// AuthService registers persons and issues JWTs. Documents are validated
// against the external compliance API before a person is created.
type AuthService struct {
	db         *sql.DB
	redis      *redis.Client
	compliance *ComplianceService
	validator  *validator.Validate
}

// RegisterRequest is the person registration payload. Document is a CPF
// (11 digits) or CNPJ (14 digits).
type RegisterRequest struct {
	Name     string `json:"name" validate:"required,min=2" example:"Maria Silva"`
	Document string `json:"document" validate:"required,min=11,max=14" example:"12345678901"`
	Password string `json:"password" validate:"required,min=6" example:"password123"`
}

// LoginRequest carries login credentials.
type LoginRequest struct {
	Document string `json:"document" validate:"required" example:"12345678901"`
	Password string `json:"password" validate:"required,min=6" example:"password123"`
}

// AuthResponse is returned on successful login.
type AuthResponse struct {
	Token  string        `json:"token"`
	Person models.Person `json:"person"`
}

func NewAuthService(db *sql.DB, redisClient *redis.Client, compliance *ComplianceService) *AuthService {
	return &AuthService{
		db:         db,
		redis:      redisClient,
		compliance: compliance,
		validator:  validator.New(),
	}
}

func (s *AuthService) sendErrorResponse(w http.ResponseWriter, message string, statusCode int, validationErr error) {
	SendErrorResponse(w, message, statusCode, validationErr)
}

// Register handles person registration
// @Summary Register a new person
// @Description Register a person with name, CPF/CNPJ document, and password
// @Tags auth
// @Accept json
// @Produce json
// @Param request body RegisterRequest true "Registration request"
// @Success 201 {object} models.Person "Registration successful"
// @Failure 400 {object} ErrorResponse "Invalid request"
// @Failure 409 {object} ErrorResponse "Document already registered"
// @Failure 422 {object} ErrorResponse "Document rejected by compliance"
// @Router /auth/register [post]
func (s *AuthService) Register(w http.ResponseWriter, r *http.Request) {
	log.Printf("[AUTH] Registration attempt from IP: %s", r.RemoteAddr)

	maxBytes := 1_048_576 // 1 MB
	r.Body = http.MaxBytesReader(w, r.Body, int64(maxBytes))

	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	var req RegisterRequest
	if err := dec.Decode(&req); err != nil {
		log.Printf("[AUTH] Registration failed - invalid request: %v", err)
		s.sendErrorResponse(w, "Invalid request", http.StatusBadRequest, nil)
		return
	}

	if err := dec.Decode(&struct{}{}); err != io.EOF {
		log.Printf("[AUTH] Multiple JSON objects detected")
		s.sendErrorResponse(w, "Request body must only contain a single JSON object", http.StatusBadRequest, nil)
		return
	}

	if err := s.validator.Struct(&req); err != nil {
		log.Printf("[AUTH] Registration validation failed: %v", err)
		s.sendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return
	}

	document := strings.Map(keepDigits, req.Document)
	documentType, err := documentTypeOf(document)
	if err != nil {
		s.sendErrorResponse(w, err.Error(), http.StatusBadRequest, nil)
		return
	}

	if s.compliance != nil {
		result, err := s.compliance.ValidateDocument(r.Context(), document, documentType)
		if err != nil {
			log.Printf("[AUTH] Compliance validation failed for document: %v", err)
			s.sendErrorResponse(w, "Document validation unavailable, try again later", http.StatusServiceUnavailable, nil)
			return
		}
		if !result.Approved() {
			log.Printf("[AUTH] Document rejected by compliance: %s", result.Reason)
			s.sendErrorResponse(w, "Document rejected by compliance", http.StatusUnprocessableEntity, nil)
			return
		}
	}

	var exists bool
	if err := s.db.QueryRow(`SELECT EXISTS(SELECT 1 FROM persons WHERE document = $1)`, document).Scan(&exists); err != nil {
		log.Printf("[AUTH] Document lookup failed: %v", err)
		s.sendErrorResponse(w, "Failed to create person", http.StatusInternalServerError, nil)
		return
	}
	if exists {
		s.sendErrorResponse(w, "Document already registered", http.StatusConflict, nil)
		return
	}

	hashedPassword, err := hashPassword(req.Password)
	if err != nil {
		log.Printf("[AUTH] Password hashing failed: %v", err)
		s.sendErrorResponse(w, "An Internal Error Occurred", http.StatusInternalServerError, nil)
		return
	}

	now := time.Now().UTC()
	person := models.Person{
		ID:        uuid.NewString(),
		Name:      req.Name,
		Document:  document,
		CreatedAt: now,
		UpdatedAt: now,
	}

	_, err = s.db.Exec(`
		INSERT INTO persons (id, name, document, password_hash, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		person.ID, person.Name, person.Document, hashedPassword, person.CreatedAt, person.UpdatedAt)
	if err != nil {
		log.Printf("[AUTH] Person insert failed: %v", err)
		s.sendErrorResponse(w, "Failed to create person", http.StatusInternalServerError, nil)
		return
	}

	log.Printf("[AUTH] Registration successful for person %s", person.ID)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(person)
}

// Login authenticates a person by document and password
// @Summary Login
// @Description Authenticate with document and password, returns a JWT
// @Tags auth
// @Accept json
// @Produce json
// @Param request body LoginRequest true "Login request"
// @Success 200 {object} AuthResponse "Login successful"
// @Failure 400 {object} ErrorResponse "Invalid request"
// @Failure 401 {object} ErrorResponse "Invalid credentials"
// @Router /auth/login [post]
func (s *AuthService) Login(w http.ResponseWriter, r *http.Request) {
	maxBytes := 1_048_576 // 1 MB
	r.Body = http.MaxBytesReader(w, r.Body, int64(maxBytes))

	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	var req LoginRequest
	if err := dec.Decode(&req); err != nil {
		s.sendErrorResponse(w, "Invalid request", http.StatusBadRequest, nil)
		return
	}

	if err := s.validator.Struct(&req); err != nil {
		s.sendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return
	}

	document := strings.Map(keepDigits, req.Document)

	var person models.Person
	err := s.db.QueryRow(`
		SELECT id, name, document, password_hash, created_at, updated_at
		FROM persons WHERE document = $1`, document).Scan(
		&person.ID, &person.Name, &person.Document, &person.PasswordHash,
		&person.CreatedAt, &person.UpdatedAt)
	if err != nil {
		log.Printf("[AUTH] Login failed - person not found")
		s.sendErrorResponse(w, "Invalid credentials", http.StatusUnauthorized, nil)
		return
	}

	if !verifyPassword(req.Password, person.PasswordHash) {
		log.Printf("[AUTH] Invalid password for person %s", person.ID)
		s.sendErrorResponse(w, "Invalid credentials", http.StatusUnauthorized, nil)
		return
	}

	token, err := generateJWT(person.ID)
	if err != nil {
		log.Printf("[AUTH] JWT generation failed for person %s: %v", person.ID, err)
		s.sendErrorResponse(w, "Failed to generate token", http.StatusInternalServerError, nil)
		return
	}

	person.PasswordHash = ""
	log.Printf("[AUTH] Login successful for person %s", person.ID)
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(AuthResponse{Token: token, Person: person})
}

// Logout revokes the caller's token
// @Summary Logout
// @Description Revoke the presented JWT until its natural expiry
// @Tags auth
// @Produce json
// @Success 200 {object} map[string]string "Logout successful"
// @Router /auth/logout [post]
func (s *AuthService) Logout(w http.ResponseWriter, r *http.Request) {
	token := r.Header.Get("Authorization")
	if token != "" && len(token) > 7 {
		token = token[7:] // strip "Bearer "

		if s.redis != nil {
			ctx := context.Background()
			key := fmt.Sprintf("blacklist:%s", token)
			expiry := time.Duration(viper.GetInt("jwt.expiry_hours")) * time.Hour
			if err := s.redis.Set(ctx, key, "1", expiry).Err(); err != nil {
				log.Printf("[AUTH] Failed to blacklist token: %v", err)
			}
		}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"message": "Logout successful"})
}

// GetProfile returns the authenticated person's record
// @Summary Get own profile
// @Description Get the authenticated person's details
// @Tags auth
// @Produce json
// @Success 200 {object} models.Person "Person details"
// @Failure 401 {string} string "Unauthorized"
// @Router /auth/me [get]
func (s *AuthService) GetProfile(w http.ResponseWriter, r *http.Request) {
	personID, _ := r.Context().Value("personID").(string)
	if personID == "" {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	var person models.Person
	err := s.db.QueryRow(`
		SELECT id, name, document, created_at, updated_at
		FROM persons WHERE id = $1`, personID).Scan(
		&person.ID, &person.Name, &person.Document, &person.CreatedAt, &person.UpdatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			http.Error(w, "Person not found", http.StatusNotFound)
		} else {
			log.Printf("[AUTH] Failed to fetch person %s: %v", personID, err)
			http.Error(w, "Failed to fetch person", http.StatusInternalServerError)
		}
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(person)
}

func documentTypeOf(document string) (string, error) {
	switch len(document) {
	case 11:
		return "cpf", nil
	case 14:
		return "cnpj", nil
	}
	return "", fmt.Errorf("document must be a CPF (11 digits) or CNPJ (14 digits)")
}

func keepDigits(r rune) rune {
	if r >= '0' && r <= '9' {
		return r
	}
	return -1
}

func generateJWT(personID string) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"person_id": personID,
		"exp":       time.Now().Add(time.Duration(viper.GetInt("jwt.expiry_hours")) * time.Hour).Unix(),
	})

	return token.SignedString([]byte(viper.GetString("jwt.secret_key")))
}

func hashPassword(password string) (string, error) {
	salt := make([]byte, viper.GetInt("argon2.salt_length"))
	if _, err := cryptorand.Read(salt); err != nil {
		return "", err
	}

	hash := argon2.IDKey([]byte(password), salt,
		uint32(viper.GetInt("argon2.time")),
		uint32(viper.GetInt("argon2.memory")),
		uint8(viper.GetInt("argon2.threads")),
		uint32(viper.GetInt("argon2.key_length")))
	return fmt.Sprintf("%s$%s", base64.StdEncoding.EncodeToString(salt), base64.StdEncoding.EncodeToString(hash)), nil
}

func verifyPassword(password, hashedPassword string) bool {
	parts := strings.Split(hashedPassword, "$")
	if len(parts) != 2 {
		return false
	}

	salt, err := base64.StdEncoding.DecodeString(parts[0])
	if err != nil {
		return false
	}

	hash, err := base64.StdEncoding.DecodeString(parts[1])
	if err != nil {
		return false
	}

	computedHash := argon2.IDKey([]byte(password), salt,
		uint32(viper.GetInt("argon2.time")),
		uint32(viper.GetInt("argon2.memory")),
		uint8(viper.GetInt("argon2.threads")),
		uint32(viper.GetInt("argon2.key_length")))
	return string(hash) == string(computedHash)
}
