package application

import (
	"github.com/gorilla/mux"
)

// Controller is the unit of HTTP surface registration. Key identifies the
// controller's route namespace; Register mounts its routes on the router.
type Controller interface {
	Key() string
	Register(r *mux.Router)
}

type Application struct {
	controllers map[string]Controller
	middleware  []mux.MiddlewareFunc
}

func New() *Application {
	return &Application{controllers: map[string]Controller{}}
}

// RegisterControllers adds controllers keyed by namespace; registering a
// controller with an existing key replaces it.
func (a *Application) RegisterControllers(controllers ...Controller) {
	for _, c := range controllers {
		a.controllers[c.Key()] = c
	}
}

func (a *Application) RegisterMiddleware(middleware ...mux.MiddlewareFunc) {
	a.middleware = append(a.middleware, middleware...)
}

// Router builds the mux router with all middleware and controllers mounted.
func (a *Application) Router() *mux.Router {
	r := mux.NewRouter()
	r.Use(a.middleware...)
	for _, controller := range a.controllers {
		controller.Register(r)
	}
	return r
}
