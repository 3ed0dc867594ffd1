package service_test

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"github.com/tmeras/resellmart/internal/domain/models"
	"github.com/tmeras/resellmart/internal/service"
	"github.com/tmeras/resellmart/internal/storage"
)

// --- фиктивные репозитории ---

type fakeUserRepo struct {
	users map[int64]*models.User
}

var _ storage.UserStorage = (*fakeUserRepo)(nil)

func newFakeUserRepo() *fakeUserRepo {
	return &fakeUserRepo{users: make(map[int64]*models.User)}
}

func (f *fakeUserRepo) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	for _, u := range f.users {
		if u.Email == email {
			return u, nil
		}
	}
	return nil, storage.ErrUserNotFound
}

func (f *fakeUserRepo) CreateUser(ctx context.Context, user *models.User) (*models.User, error) {
	user.ID = int64(len(f.users) + 1)
	f.users[user.ID] = user
	return user, nil
}

func (f *fakeUserRepo) GetUserByID(ctx context.Context, id int64) (*models.User, error) {
	user, ok := f.users[id]
	if !ok {
		return nil, storage.ErrUserNotFound
	}
	return user, nil
}

type fakeAddressRepo struct {
	addresses map[int64]*models.Address
}

var _ storage.AddressStorage = (*fakeAddressRepo)(nil)

func newFakeAddressRepo() *fakeAddressRepo {
	return &fakeAddressRepo{addresses: make(map[int64]*models.Address)}
}

func (f *fakeAddressRepo) GetAddressByID(ctx context.Context, id int64) (*models.Address, error) {
	address, ok := f.addresses[id]
	if !ok {
		return nil, storage.ErrAddressNotFound
	}
	return address, nil
}

func (f *fakeAddressRepo) CreateAddress(ctx context.Context, address *models.Address) (*models.Address, error) {
	address.ID = int64(len(f.addresses) + 1)
	f.addresses[address.ID] = address
	return address, nil
}

func (f *fakeAddressRepo) GetAddressesByUserID(ctx context.Context, userID int64) ([]*models.Address, error) {
	var result []*models.Address
	for _, a := range f.addresses {
		if a.UserID == userID {
			result = append(result, a)
		}
	}
	return result, nil
}

type fakeProductRepo struct {
	products  map[int64]*models.Product
	locked    bool // эмуляция строк, удерживаемых другой транзакцией
	lockCalls int
}

var _ storage.ProductStorage = (*fakeProductRepo)(nil)

func newFakeProductRepo() *fakeProductRepo {
	return &fakeProductRepo{products: make(map[int64]*models.Product)}
}

func (f *fakeProductRepo) GetProductByID(ctx context.Context, id int64) (*models.Product, error) {
	product, ok := f.products[id]
	if !ok {
		return nil, storage.ErrProductNotFound
	}
	return product, nil
}

func (f *fakeProductRepo) LockProductsByIDsTx(ctx context.Context, tx *sql.Tx, ids []int64) ([]*models.Product, error) {
	f.lockCalls++
	if f.locked {
		return nil, fmt.Errorf("could not obtain lock: %w", storage.ErrProductLocked)
	}
	var result []*models.Product
	for _, id := range ids {
		if product, ok := f.products[id]; ok {
			result = append(result, product)
		}
	}
	return result, nil
}

func (f *fakeProductRepo) UpdateAvailableQuantityTx(ctx context.Context, tx *sql.Tx, id int64, newQuantity int) error {
	product, ok := f.products[id]
	if !ok {
		return storage.ErrProductNotFound
	}
	product.AvailableQuantity = newQuantity
	return nil
}

func (f *fakeProductRepo) EnsureAvailableQuantity(ctx context.Context, id int64, quantity int) error {
	product, ok := f.products[id]
	if !ok {
		return nil
	}
	// как и в SQL-версии, остаток может только понижаться
	if product.AvailableQuantity > quantity {
		product.AvailableQuantity = quantity
	}
	return nil
}

type fakeCartRepo struct {
	items map[int64][]*models.CartItem // ключ: userID
}

var _ storage.CartStorage = (*fakeCartRepo)(nil)

func newFakeCartRepo() *fakeCartRepo {
	return &fakeCartRepo{items: make(map[int64][]*models.CartItem)}
}

func (f *fakeCartRepo) GetItemsByUserID(ctx context.Context, userID int64) ([]*models.CartItem, error) {
	return f.items[userID], nil
}

func (f *fakeCartRepo) UpsertItem(ctx context.Context, userID, productID int64, quantity int) (*models.CartItem, error) {
	for _, item := range f.items[userID] {
		if item.ProductID == productID {
			item.Quantity += quantity
			return item, nil
		}
	}
	item := &models.CartItem{
		ID:        int64(len(f.items[userID]) + 1),
		UserID:    userID,
		ProductID: productID,
		Quantity:  quantity,
		AddedAt:   time.Now(),
	}
	f.items[userID] = append(f.items[userID], item)
	return item, nil
}

func (f *fakeCartRepo) deleteItems(userID int64, productIDs []int64) {
	toDelete := make(map[int64]bool, len(productIDs))
	for _, id := range productIDs {
		toDelete[id] = true
	}
	var remaining []*models.CartItem
	for _, item := range f.items[userID] {
		if !toDelete[item.ProductID] {
			remaining = append(remaining, item)
		}
	}
	f.items[userID] = remaining
}

func (f *fakeCartRepo) DeleteItemsByUserTx(ctx context.Context, tx *sql.Tx, userID int64, productIDs []int64) error {
	f.deleteItems(userID, productIDs)
	return nil
}

func (f *fakeCartRepo) DeleteItemsByUser(ctx context.Context, userID int64, productIDs []int64) error {
	f.deleteItems(userID, productIDs)
	return nil
}

func (f *fakeCartRepo) DeleteItem(ctx context.Context, userID, productID int64) error {
	f.deleteItems(userID, []int64{productID})
	return nil
}

type fakeOrderRepo struct {
	orders map[int64]*models.Order
	nextID int64
}

var _ storage.OrderStorage = (*fakeOrderRepo)(nil)

func newFakeOrderRepo() *fakeOrderRepo {
	return &fakeOrderRepo{orders: make(map[int64]*models.Order)}
}

func (f *fakeOrderRepo) CreateOrderTx(ctx context.Context, tx *sql.Tx, order *models.Order) (*models.Order, error) {
	f.nextID++
	order.ID = f.nextID
	order.PlacedAt = time.Now()
	for i := range order.Items {
		order.Items[i].ID = int64(i + 1)
		order.Items[i].OrderID = order.ID
	}
	f.orders[order.ID] = order
	return order, nil
}

func (f *fakeOrderRepo) GetOrderByID(ctx context.Context, id int64) (*models.Order, error) {
	order, ok := f.orders[id]
	if !ok {
		return nil, storage.ErrOrderNotFound
	}
	return order, nil
}

func (f *fakeOrderRepo) GetOrdersByUserID(ctx context.Context, userID int64) ([]*models.Order, error) {
	var result []*models.Order
	for _, order := range f.orders {
		if order.UserID == userID {
			result = append(result, order)
		}
	}
	return result, nil
}

func (f *fakeOrderRepo) OrderExists(ctx context.Context, id int64) (bool, error) {
	_, ok := f.orders[id]
	return ok, nil
}

func (f *fakeOrderRepo) UpdateStatus(ctx context.Context, id int64, status models.OrderStatus, sessionID *string) error {
	order, ok := f.orders[id]
	if !ok {
		return storage.ErrOrderNotFound
	}
	order.Status = status
	if sessionID != nil {
		order.PaymentSessionID = sessionID
	}
	return nil
}

// fakeDispatcher записывает переданные на фоновую обработку заказы
type fakeDispatcher struct {
	orders   []*models.Order
	products [][]*models.Product
}

func (f *fakeDispatcher) Enqueue(order *models.Order, products []*models.Product) {
	f.orders = append(f.orders, order)
	f.products = append(f.products, products)
}

// --- окружение для тестов оформления заказа ---

type orderTestEnv struct {
	users      *fakeUserRepo
	addresses  *fakeAddressRepo
	products   *fakeProductRepo
	cart       *fakeCartRepo
	orders     *fakeOrderRepo
	dispatcher *fakeDispatcher
	db         *sql.DB
	mock       sqlmock.Sqlmock
	svc        service.OrderService
}

func newOrderTestEnv(t *testing.T, stockRetries int) *orderTestEnv {
	t.Helper()

	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	env := &orderTestEnv{
		users:      newFakeUserRepo(),
		addresses:  newFakeAddressRepo(),
		products:   newFakeProductRepo(),
		cart:       newFakeCartRepo(),
		orders:     newFakeOrderRepo(),
		dispatcher: &fakeDispatcher{},
		db:         db,
		mock:       mock,
	}
	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))
	env.svc = service.NewOrderService(
		logger, db,
		env.users, env.addresses, env.products, env.cart, env.orders,
		env.dispatcher, stockRetries, time.Millisecond,
	)
	return env
}

// addBuyer создает покупателя с двумя его адресами (billing id, delivery id)
func (e *orderTestEnv) addBuyer(id int64) (int64, int64) {
	e.users.users[id] = &models.User{ID: id, Email: fmt.Sprintf("user%d@test.com", id)}
	billing, _ := e.addresses.CreateAddress(context.Background(), &models.Address{
		UserID: id, Line: "1 Main St", City: "Athens", PostalCode: "11111", Country: "GR",
	})
	delivery, _ := e.addresses.CreateAddress(context.Background(), &models.Address{
		UserID: id, Line: "2 Side St", City: "Athens", PostalCode: "22222", Country: "GR",
	})
	return billing.ID, delivery.ID
}

func (e *orderTestEnv) addProduct(id, sellerID int64, price string, quantity int) {
	e.products.products[id] = &models.Product{
		ID:                id,
		SellerID:          sellerID,
		Name:              fmt.Sprintf("product-%d", id),
		Condition:         "USED",
		Price:             decimal.RequireFromString(price),
		AvailableQuantity: quantity,
	}
}

func TestPlaceOrder_Success(t *testing.T) {
	env := newOrderTestEnv(t, 3)
	billingID, deliveryID := env.addBuyer(1)
	env.addProduct(10, 2, "10.00", 5)
	_, err := env.cart.UpsertItem(context.Background(), 1, 10, 2)
	assert.NoError(t, err)

	env.mock.ExpectBegin()
	env.mock.ExpectCommit()

	order, err := env.svc.PlaceOrder(context.Background(), 1, billingID, deliveryID, models.PaymentMethodCash)
	assert.NoError(t, err)
	assert.NotNil(t, order)

	// Итог заказа — произведение цены на количество
	assert.Equal(t, "20.00", order.Total().StringFixed(2))
	assert.Equal(t, models.OrderStatusPlacedPaid, order.Status)
	assert.Len(t, order.Items, 1)
	assert.Equal(t, "10.00", order.Items[0].Price.StringFixed(2))

	// Остаток списан, корзина очищена
	assert.Equal(t, 3, env.products.products[10].AvailableQuantity)
	assert.Empty(t, env.cart.items[1])

	// Заказ передан на фоновую обработку ровно один раз
	assert.Len(t, env.dispatcher.orders, 1)
	assert.Equal(t, order.ID, env.dispatcher.orders[0].ID)

	assert.NoError(t, env.mock.ExpectationsWereMet())
}

func TestPlaceOrder_CardPaymentStartsPending(t *testing.T) {
	env := newOrderTestEnv(t, 3)
	billingID, deliveryID := env.addBuyer(1)
	env.addProduct(10, 2, "15.50", 1)
	_, err := env.cart.UpsertItem(context.Background(), 1, 10, 1)
	assert.NoError(t, err)

	env.mock.ExpectBegin()
	env.mock.ExpectCommit()

	order, err := env.svc.PlaceOrder(context.Background(), 1, billingID, deliveryID, models.PaymentMethodCard)
	assert.NoError(t, err)
	assert.Equal(t, models.OrderStatusPendingPayment, order.Status)
}

func TestPlaceOrder_InsufficientStock(t *testing.T) {
	env := newOrderTestEnv(t, 3)
	billingID, deliveryID := env.addBuyer(1)
	env.addProduct(10, 2, "10.00", 1)
	_, err := env.cart.UpsertItem(context.Background(), 1, 10, 2)
	assert.NoError(t, err)

	env.mock.ExpectBegin()
	env.mock.ExpectRollback()

	order, err := env.svc.PlaceOrder(context.Background(), 1, billingID, deliveryID, models.PaymentMethodCash)
	assert.Error(t, err)
	assert.True(t, errors.Is(err, service.ErrInsufficientStock))
	assert.Contains(t, err.Error(), "product 10")
	assert.Nil(t, order)

	// Ничего не изменилось: остаток на месте, заказа нет, корзина полна
	assert.Equal(t, 1, env.products.products[10].AvailableQuantity)
	assert.Empty(t, env.orders.orders)
	assert.Len(t, env.cart.items[1], 1)
	assert.Empty(t, env.dispatcher.orders)

	assert.NoError(t, env.mock.ExpectationsWereMet())
}

func TestPlaceOrder_OneBadLineAbortsAll(t *testing.T) {
	env := newOrderTestEnv(t, 3)
	billingID, deliveryID := env.addBuyer(1)
	env.addProduct(10, 2, "10.00", 5)
	env.addProduct(11, 2, "4.00", 1)
	_, err := env.cart.UpsertItem(context.Background(), 1, 10, 2)
	assert.NoError(t, err)
	_, err = env.cart.UpsertItem(context.Background(), 1, 11, 3) // больше, чем есть
	assert.NoError(t, err)

	env.mock.ExpectBegin()
	env.mock.ExpectRollback()

	_, err = env.svc.PlaceOrder(context.Background(), 1, billingID, deliveryID, models.PaymentMethodCash)
	assert.True(t, errors.Is(err, service.ErrInsufficientStock))

	// Валидная позиция тоже не списана
	assert.Equal(t, 5, env.products.products[10].AvailableQuantity)
	assert.Equal(t, 1, env.products.products[11].AvailableQuantity)
	assert.Empty(t, env.orders.orders)
}

func TestPlaceOrder_ForeignAddress(t *testing.T) {
	env := newOrderTestEnv(t, 3)
	_, deliveryID := env.addBuyer(1)
	otherBillingID, _ := env.addBuyer(2)
	env.addProduct(10, 3, "10.00", 5)
	_, err := env.cart.UpsertItem(context.Background(), 1, 10, 1)
	assert.NoError(t, err)

	// Чужой платёжный адрес: отказ до начала транзакции
	order, err := env.svc.PlaceOrder(context.Background(), 1, otherBillingID, deliveryID, models.PaymentMethodCash)
	assert.True(t, errors.Is(err, service.ErrForeignAddress))
	assert.Nil(t, order)

	assert.Equal(t, 5, env.products.products[10].AvailableQuantity)
	assert.Len(t, env.cart.items[1], 1)
	assert.NoError(t, env.mock.ExpectationsWereMet())
}

func TestPlaceOrder_EmptyCart(t *testing.T) {
	env := newOrderTestEnv(t, 3)
	billingID, deliveryID := env.addBuyer(1)

	_, err := env.svc.PlaceOrder(context.Background(), 1, billingID, deliveryID, models.PaymentMethodCash)
	assert.True(t, errors.Is(err, service.ErrEmptyCart))
	assert.NoError(t, env.mock.ExpectationsWereMet())
}

func TestPlaceOrder_AddressNotFound(t *testing.T) {
	env := newOrderTestEnv(t, 3)
	billingID, _ := env.addBuyer(1)

	_, err := env.svc.PlaceOrder(context.Background(), 1, billingID, 999, models.PaymentMethodCash)
	assert.True(t, errors.Is(err, storage.ErrAddressNotFound))
	assert.Contains(t, err.Error(), "999")
}

func TestPlaceOrder_RetriesOnLockedRowsThenGivesUp(t *testing.T) {
	env := newOrderTestEnv(t, 2)
	billingID, deliveryID := env.addBuyer(1)
	env.addProduct(10, 2, "10.00", 5)
	_, err := env.cart.UpsertItem(context.Background(), 1, 10, 1)
	assert.NoError(t, err)

	// Строки товара всё время удерживаются другой транзакцией
	env.products.locked = true
	for i := 0; i < 3; i++ {
		env.mock.ExpectBegin()
		env.mock.ExpectRollback()
	}

	_, err = env.svc.PlaceOrder(context.Background(), 1, billingID, deliveryID, models.PaymentMethodCash)
	assert.True(t, errors.Is(err, service.ErrInsufficientStock))

	// Первая попытка плюс два повтора
	assert.Equal(t, 3, env.products.lockCalls)
	assert.NoError(t, env.mock.ExpectationsWereMet())
}

// Две последовательные попытки купить последнюю единицу товара:
// первая успешна, вторая получает отказ по остатку, остаток не уходит в минус
func TestPlaceOrder_LastUnitSoldOnlyOnce(t *testing.T) {
	env := newOrderTestEnv(t, 3)
	billingID1, deliveryID1 := env.addBuyer(1)
	billingID2, deliveryID2 := env.addBuyer(2)
	env.addProduct(10, 3, "99.99", 1)
	_, err := env.cart.UpsertItem(context.Background(), 1, 10, 1)
	assert.NoError(t, err)
	_, err = env.cart.UpsertItem(context.Background(), 2, 10, 1)
	assert.NoError(t, err)

	env.mock.ExpectBegin()
	env.mock.ExpectCommit()
	env.mock.ExpectBegin()
	env.mock.ExpectRollback()

	first, err := env.svc.PlaceOrder(context.Background(), 1, billingID1, deliveryID1, models.PaymentMethodCash)
	assert.NoError(t, err)
	assert.NotNil(t, first)

	second, err := env.svc.PlaceOrder(context.Background(), 2, billingID2, deliveryID2, models.PaymentMethodCash)
	assert.True(t, errors.Is(err, service.ErrInsufficientStock))
	assert.Nil(t, second)

	assert.Equal(t, 0, env.products.products[10].AvailableQuantity)
	assert.Len(t, env.orders.orders, 1)
	assert.NoError(t, env.mock.ExpectationsWereMet())
}

func TestConfirmPayment_PendingOrder(t *testing.T) {
	env := newOrderTestEnv(t, 3)
	env.orders.orders[5] = &models.Order{ID: 5, UserID: 1, Status: models.OrderStatusPendingPayment}

	err := env.svc.ConfirmPayment(context.Background(), 5, "session-abc")
	assert.NoError(t, err)
	assert.Equal(t, models.OrderStatusPaid, env.orders.orders[5].Status)
	assert.NotNil(t, env.orders.orders[5].PaymentSessionID)
	assert.Equal(t, "session-abc", *env.orders.orders[5].PaymentSessionID)
}

func TestConfirmPayment_TerminalOrderRejected(t *testing.T) {
	env := newOrderTestEnv(t, 3)
	env.orders.orders[5] = &models.Order{ID: 5, UserID: 1, Status: models.OrderStatusPaid}

	err := env.svc.ConfirmPayment(context.Background(), 5, "session-abc")
	assert.True(t, errors.Is(err, service.ErrOrderNotPayable))
	assert.Equal(t, models.OrderStatusPaid, env.orders.orders[5].Status)
}

func TestConfirmPayment_OrderNotFound(t *testing.T) {
	env := newOrderTestEnv(t, 3)

	err := env.svc.ConfirmPayment(context.Background(), 42, "session-abc")
	assert.True(t, errors.Is(err, storage.ErrOrderNotFound))
}
