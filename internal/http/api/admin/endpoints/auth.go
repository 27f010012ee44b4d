package endpoints

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/Northcast-Media/airsync/internal/db"
	"github.com/Northcast-Media/airsync/internal/http/api"
	"github.com/Northcast-Media/airsync/internal/http/api/admin/packets"
	"github.com/Northcast-Media/airsync/internal/http/middleware"
	"github.com/Northcast-Media/airsync/internal/model"
)

type AuthController struct {
	secretKey string
	store     db.Store
}

func NewAuthController(secretKey string, store db.Store) *AuthController {
	return &AuthController{secretKey: secretKey, store: store}
}

// AuthPublicModule mounts signup/login (no token required).
func AuthPublicModule(secretKey string, store db.Store) api.Module {
	ctl := NewAuthController(secretKey, store)
	return api.ModuleFunc(func(c *api.Controller) {
		c.POSTPublic("/auth/signup", ctl.signup)
		c.POSTPublic("/auth/login", ctl.login)
	})
}

// AuthSessionModule mounts endpoints that require a valid token.
func AuthSessionModule(secretKey string, store db.Store) api.Module {
	ctl := NewAuthController(secretKey, store)
	return api.ModuleFunc(func(c *api.Controller) {
		c.GET("/auth/current_profile", ctl.currentProfile)
	})
}

func (a *AuthController) signup(ctx *gin.Context) (any, *api.APIError) {
	var request packets.SignupRequest
	if err := ctx.ShouldBindJSON(&request); err != nil {
		return nil, &api.APIError{Code: http.StatusBadRequest, Message: err.Error()}
	}

	hashed, err := middleware.HashPassword(request.Password)
	if err != nil {
		return nil, &api.APIError{Code: http.StatusInternalServerError, Message: "could not hash password"}
	}

	userID, err := a.store.CreateUser(request.Email, hashed, request.Name)
	if err != nil {
		log.Error().Err(err).Str("email", request.Email).Msg("signup failed")
		return nil, &api.APIError{Code: http.StatusConflict, Message: "could not create user"}
	}

	token, err := middleware.GenerateJWT(userID, a.secretKey)
	if err != nil {
		return nil, &api.APIError{Code: http.StatusInternalServerError, Message: "could not issue token"}
	}
	return packets.TokenResponse{Token: token}, nil
}

func (a *AuthController) login(ctx *gin.Context) (any, *api.APIError) {
	var request packets.LoginRequest
	if err := ctx.ShouldBindJSON(&request); err != nil {
		return nil, &api.APIError{Code: http.StatusBadRequest, Message: err.Error()}
	}

	user, err := a.store.GetUserByEmail(request.Email)
	if err != nil || !middleware.CheckPassword(user.HashedPassword, request.Password) {
		return nil, &api.APIError{Code: http.StatusUnauthorized, Message: middleware.ErrInvalidCredentials.Error()}
	}

	token, err := middleware.GenerateJWT(user.ID, a.secretKey)
	if err != nil {
		return nil, &api.APIError{Code: http.StatusInternalServerError, Message: "could not issue token"}
	}
	return packets.TokenResponse{Token: token}, nil
}

func (a *AuthController) currentProfile(ctx *gin.Context, user *model.User) (any, *api.APIError) {
	return packets.ProfileResponse{ID: user.ID, Email: user.Email, Name: user.Name}, nil
}
